package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hwen/policy-digest/folder"
	"github.com/hwen/policy-digest/mailstore"
	"github.com/hwen/policy-digest/stats"
	"github.com/hwen/policy-digest/timewindow"
)

// fakeStore scripts per-tier responses.
type fakeStore struct {
	structured    []mailstore.Item
	structuredErr error
	stringTier    []mailstore.Item
	stringErr     error
	calls         []mailstore.Tier
}

func (f *fakeStore) Mailboxes(context.Context) ([]string, error) { return []string{"fake"}, nil }
func (f *fakeStore) Folders(context.Context) (*folder.Folder, error) {
	return &folder.Folder{Name: "fake"}, nil
}
func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) Search(_ context.Context, _ string, flt mailstore.Filter) ([]mailstore.Item, error) {
	f.calls = append(f.calls, flt.Tier)
	if flt.Tier == mailstore.TierStructured {
		return f.structured, f.structuredErr
	}
	return f.stringTier, f.stringErr
}

func window(t *testing.T) timewindow.Window {
	t.Helper()
	w, err := timewindow.Resolve(timewindow.Options{Since: "2025-08-10", Until: "2025-08-21"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return w
}

func inWindowItem(id string, day int) mailstore.Item {
	return mailstore.Item{
		ProvenanceID: id,
		ReceivedAt:   time.Date(2025, 8, day, 10, 0, 0, 0, time.Local),
	}
}

func newEngine(store mailstore.Store) *Engine {
	return NewEngine(store, slog.New(slog.NewTextHandler(io.Discard, nil)), stats.NewCollector())
}

func TestRun_StructuredTierWins(t *testing.T) {
	store := &fakeStore{structured: []mailstore.Item{inWindowItem("a", 12)}}
	items, err := newEngine(store).Run(context.Background(), "INBOX", window(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(items) != 1 || items[0].ProvenanceID != "a" {
		t.Fatalf("items = %v", items)
	}
	if len(store.calls) != 1 || store.calls[0] != mailstore.TierStructured {
		t.Errorf("calls = %v, want structured only", store.calls)
	}
}

func TestRun_FallbackOnZeroStructuredResults(t *testing.T) {
	// Structured tier silently returns nothing; the string tier finds a
	// message that passes validation. The fallback's results must be used.
	store := &fakeStore{
		stringTier: []mailstore.Item{inWindowItem("b", 15)},
	}
	items, err := newEngine(store).Run(context.Background(), "INBOX", window(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(items) != 1 || items[0].ProvenanceID != "b" {
		t.Fatalf("items = %v, want fallback result", items)
	}
	if len(store.calls) != 2 {
		t.Errorf("calls = %v, want both tiers", store.calls)
	}
}

func TestRun_FallbackOnStructuredError(t *testing.T) {
	store := &fakeStore{
		structuredErr: errors.New("syntax error in search"),
		stringTier:    []mailstore.Item{inWindowItem("c", 11)},
	}
	items, err := newEngine(store).Run(context.Background(), "INBOX", window(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(items) != 1 || items[0].ProvenanceID != "c" {
		t.Fatalf("items = %v", items)
	}
}

func TestRun_ClientSideRevalidation(t *testing.T) {
	w := window(t)
	store := &fakeStore{structured: []mailstore.Item{
		inWindowItem("keep", 12),
		{ProvenanceID: "early", ReceivedAt: time.Date(2025, 8, 1, 0, 0, 0, 0, time.Local)},
		{ProvenanceID: "late", ReceivedAt: time.Date(2025, 9, 1, 0, 0, 0, 0, time.Local)},
	}}
	items, err := newEngine(store).Run(context.Background(), "INBOX", w)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(items) != 1 || items[0].ProvenanceID != "keep" {
		t.Fatalf("items = %v, want only the in-window item", items)
	}
	for _, item := range items {
		if !w.Contains(item.EffectiveTime()) {
			t.Errorf("item %q escaped the window check", item.ProvenanceID)
		}
	}
}

func TestRun_HeaderDatePriorityInValidation(t *testing.T) {
	// Received time is in the window but the header date is not; the header
	// date decides, so the item is dropped.
	store := &fakeStore{structured: []mailstore.Item{{
		ProvenanceID: "disagree",
		ReceivedAt:   time.Date(2025, 8, 12, 10, 0, 0, 0, time.Local),
		HeaderDate:   time.Date(2025, 7, 1, 10, 0, 0, 0, time.Local),
	}}}
	items, err := newEngine(store).Run(context.Background(), "INBOX", window(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("items = %v, want none", items)
	}
}

func TestRun_AllTiersFail(t *testing.T) {
	store := &fakeStore{
		structuredErr: errors.New("connection reset"),
		stringErr:     errors.New("connection reset"),
	}
	_, err := newEngine(store).Run(context.Background(), "INBOX", window(t))
	var qe *Error
	if !errors.As(err, &qe) {
		t.Fatalf("Run() error = %v, want *query.Error", err)
	}
	if qe.Folder != "INBOX" {
		t.Errorf("Folder = %q", qe.Folder)
	}
}

func TestRun_NoMessagesIsNotAnError(t *testing.T) {
	store := &fakeStore{}
	items, err := newEngine(store).Run(context.Background(), "INBOX", window(t))
	if err != nil {
		t.Fatalf("empty result must not be an error, got %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("items = %v", items)
	}
}

func TestRun_EmptyWindowShortCircuits(t *testing.T) {
	store := &fakeStore{}
	now := time.Date(2025, 8, 21, 9, 0, 0, 0, time.Local)
	w, err := timewindow.Resolve(timewindow.Options{Days: 0, Now: now})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	items, err := newEngine(store).Run(context.Background(), "INBOX", w)
	if err != nil || len(items) != 0 {
		t.Fatalf("empty window: items=%v err=%v", items, err)
	}
	if len(store.calls) != 0 {
		t.Errorf("store should not be queried for an empty window, calls = %v", store.calls)
	}
}
