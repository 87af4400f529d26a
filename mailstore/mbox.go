package mailstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/hwen/policy-digest/folder"
)

// MboxStore reads messages from a local mbox archive. It backs offline runs
// and deterministic tests; archives are flat, so the folder path is ignored.
type MboxStore struct {
	path   string
	logger *slog.Logger
}

// OpenMbox validates the archive path and returns a store over it.
func OpenMbox(path string, logger *slog.Logger) (*MboxStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	return &MboxStore{path: path, logger: logger}, nil
}

func (s *MboxStore) Mailboxes(_ context.Context) ([]string, error) {
	return []string{filepath.Base(s.path)}, nil
}

func (s *MboxStore) Folders(_ context.Context) (*folder.Folder, error) {
	return &folder.Folder{Name: filepath.Base(s.path)}, nil
}

// Search scans the archive. The structured tier applies the window to each
// message's effective time; the string tier returns everything and leaves
// the narrowing to the client-side check.
func (s *MboxStore) Search(ctx context.Context, _ string, f Filter) ([]Item, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)

	var items []Item
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return items, nil
			}
			return nil, fmt.Errorf("mbox message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return nil, fmt.Errorf("mbox message %d read: %w", idx, err)
		}

		item, err := itemFromRaw(raw)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping unparseable mbox message", "index", idx, "err", err)
			}
			continue
		}

		if f.Tier == TierStructured {
			t := item.EffectiveTime()
			if t.Before(f.Since) || (!f.Until.IsZero() && !t.Before(f.Until)) {
				continue
			}
		}
		items = append(items, item)
	}
}

func (s *MboxStore) Close() error {
	return nil
}

var wordDecoder = mime.WordDecoder{}

func itemFromRaw(raw []byte) (Item, error) {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return Item{}, err
	}

	item := Item{Raw: raw}

	id := strings.TrimSpace(msg.Header.Get("Message-Id"))
	if id == "" {
		id = strings.TrimSpace(msg.Header.Get("Message-ID"))
	}
	item.ProvenanceID = strings.Trim(id, " <>")

	item.Subject = decodeHeader(msg.Header.Get("Subject"))

	if from := msg.Header.Get("From"); from != "" {
		if addr, err := mail.ParseAddress(from); err == nil {
			if addr.Name != "" {
				item.Sender = addr.Name
			} else {
				item.Sender = addr.Address
			}
		} else {
			item.Sender = decodeHeader(from)
		}
	}

	if date := msg.Header.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			// Archives carry no separate received time; the header date
			// stands in for both.
			item.HeaderDate = t.Local()
			item.ReceivedAt = t.Local()
		}
	}

	return item, nil
}

func decodeHeader(s string) string {
	if decoded, err := wordDecoder.DecodeHeader(s); err == nil {
		return decoded
	}
	return s
}
