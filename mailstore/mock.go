package mailstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hwen/policy-digest/folder"
)

// MockStore synthesizes a single policy email in the middle of the requested
// window. It exists for offline testing of the full pipeline.
type MockStore struct {
	logger *slog.Logger
}

func NewMock(logger *slog.Logger) *MockStore {
	return &MockStore{logger: logger}
}

func (s *MockStore) Mailboxes(_ context.Context) ([]string, error) {
	return []string{"mock"}, nil
}

func (s *MockStore) Folders(_ context.Context) (*folder.Folder, error) {
	return &folder.Folder{Name: "mock"}, nil
}

func (s *MockStore) Search(_ context.Context, _ string, f Filter) ([]Item, error) {
	mid := f.Since.Add(12 * time.Hour)
	if !f.Until.IsZero() {
		mid = f.Since.Add(f.Until.Sub(f.Since) / 2)
	}

	body := "This is mock policy email content for testing."
	raw := fmt.Sprintf(
		"Message-Id: <mock-1@policy-digest>\r\nDate: %s\r\nFrom: tester <tester@example.com>\r\nSubject: MOCK\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		mid.Format(time.RFC1123Z), body)

	if s.logger != nil {
		s.logger.Info("mock store synthesized message", "time", mid)
	}

	return []Item{{
		ProvenanceID: "mock-1@policy-digest",
		Subject:      "MOCK",
		Sender:       "tester",
		ReceivedAt:   mid,
		HeaderDate:   mid,
		Raw:          []byte(raw),
	}}, nil
}

func (s *MockStore) Close() error {
	return nil
}
