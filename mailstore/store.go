// Package mailstore abstracts the mail stores a run can read from: a live
// IMAP account, a local mbox archive, or a synthesized mock source.
//
// Store-side filtering is advisory. Backends push the requested range down
// when they can, but the query engine re-validates every candidate
// client-side and that check is the only authority on window membership.
package mailstore

import (
	"context"
	"errors"
	"time"

	"github.com/hwen/policy-digest/folder"
)

// ErrFilterUnsupported signals that a backend cannot serve the requested
// filter tier; the caller moves on to the next tier.
var ErrFilterUnsupported = errors.New("filter tier not supported by this store")

// Tier selects which of the two query syntaxes a Search call uses.
type Tier int

const (
	// TierStructured is the field-qualified, window-bounded filter.
	TierStructured Tier = iota
	// TierString is the fallback plain filter covering a superset range.
	TierString
)

func (t Tier) String() string {
	if t == TierStructured {
		return "structured"
	}
	return "string"
}

// Filter is the store-side narrowing request. Until may be zero on the
// string tier, meaning unbounded above.
type Filter struct {
	Tier  Tier
	Since time.Time
	Until time.Time
}

// Item is one raw store message, as close to the wire as practical. The
// normalizer turns it into a model.Record.
type Item struct {
	// ProvenanceID is the Message-Id header when present, else a
	// store-assigned identifier, else empty.
	ProvenanceID string

	Subject string
	Sender  string

	// ReceivedAt is the store's received-time property (IMAP internal date).
	ReceivedAt time.Time
	// HeaderDate is the parsed Date header; zero when absent or unparseable.
	HeaderDate time.Time

	// Raw is the full RFC 822 message for MIME parsing.
	Raw []byte
}

// EffectiveTime prefers the header Date over the store received time. The
// order is load-bearing: the header reflects the sender's intended time.
func (it Item) EffectiveTime() time.Time {
	if !it.HeaderDate.IsZero() {
		return it.HeaderDate
	}
	return it.ReceivedAt
}

// Store is one mailbox's worth of messages for a single run. Implementations
// release their resources in Close, which must be safe on every exit path.
type Store interface {
	// Mailboxes enumerates the top-level mailboxes visible to this store.
	Mailboxes(ctx context.Context) ([]string, error)

	// Folders returns the folder tree rooted at the mailbox.
	Folders(ctx context.Context) (*folder.Folder, error)

	// Search returns candidate items for the folder identified by its
	// store-native path. Results may over- or under-approximate the filter.
	Search(ctx context.Context, folderPath string, f Filter) ([]Item, error)

	Close() error
}
