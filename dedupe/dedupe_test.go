package dedupe

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/hwen/policy-digest/model"
	"github.com/hwen/policy-digest/stats"
)

func rec(id, subject string, day int) model.Record {
	return model.Record{
		ProvenanceID:  id,
		Subject:       subject,
		EffectiveTime: time.Date(2025, 8, day, 10, 0, 0, 0, time.Local),
	}
}

func logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCollapse_SharedProvenanceID(t *testing.T) {
	// Window 2025-08-10..2025-08-21, three raw messages, two sharing a
	// provenance id: the corpus has two entries, sorted by time.
	records := []model.Record{
		rec("dup-id", "first copy", 18),
		rec("other-id", "unrelated", 12),
		rec("dup-id", "second copy", 14),
	}
	collector := stats.NewCollector()
	got := Collapse(records, logger(), collector)

	if len(got) != 2 {
		t.Fatalf("Collapse() kept %d records, want 2", len(got))
	}
	if got[0].Subject != "unrelated" || got[1].Subject != "first copy" {
		t.Errorf("order = [%s, %s], want time-ascending with first-seen winner", got[0].Subject, got[1].Subject)
	}
	if collector.Snapshot().Duplicates != 1 {
		t.Errorf("duplicate counter = %d, want 1", collector.Snapshot().Duplicates)
	}
}

func TestCollapse_FingerprintFallback(t *testing.T) {
	a := model.Record{Subject: "same", Sender: "s", Body: "body"}
	b := model.Record{Subject: "same", Sender: "s", Body: "body"}
	c := model.Record{Subject: "different", Sender: "s", Body: "body"}

	got := Collapse([]model.Record{a, b, c}, logger(), nil)
	if len(got) != 2 {
		t.Fatalf("Collapse() kept %d records, want 2 (fingerprint dedup)", len(got))
	}
}

func TestCollapse_Idempotent(t *testing.T) {
	records := []model.Record{
		rec("x", "a", 20),
		rec("y", "b", 11),
		rec("x", "a again", 13),
	}
	once := Collapse(records, logger(), nil)
	twice := Collapse(once, logger(), nil)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Collapse not idempotent:\nonce  = %v\ntwice = %v", once, twice)
	}
}

func TestCollapse_Empty(t *testing.T) {
	if got := Collapse(nil, logger(), nil); len(got) != 0 {
		t.Errorf("Collapse(nil) = %v", got)
	}
}
