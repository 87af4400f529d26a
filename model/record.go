// Package model holds the canonical message record shared by the retrieval
// and pipeline packages.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Date sources, in priority order. The header Date reflects the sender's
// intended time and wins over store metadata for report grouping.
const (
	DateSourceHeader   = "header_date"
	DateSourceReceived = "received_time"
	DateSourceMock     = "mock"
)

const fingerprintBodyPrefix = 500

// Record is the canonical, immutable form of one retrieved message. It lives
// for the duration of a run only; everything durable is written as artifacts.
type Record struct {
	// ProvenanceID is the store's durable message identifier (Message-Id or a
	// store UID). Empty when the store exposes none.
	ProvenanceID string

	// EffectiveTime is the header Date when parseable, else the store's
	// received time. DateSource says which one was used.
	EffectiveTime time.Time
	DateSource    string
	ReceivedAt    time.Time

	Sender  string
	Subject string
	Body    string

	// TextPath is the per-message body text file saved under the run
	// directory; AttachmentPaths are the saved allow-listed attachments, in
	// enumeration order.
	TextPath        string
	AttachmentPaths []string

	// Partial marks a record salvaged from a malformed item.
	Partial bool
}

// Fingerprint is the content-derived dedup key, always computable.
func (r Record) Fingerprint() string {
	prefix := r.Body
	if len(prefix) > fingerprintBodyPrefix {
		prefix = prefix[:fingerprintBodyPrefix]
	}
	key := fmt.Sprintf("%s|%s|%s|%s",
		r.Subject, r.Sender, r.EffectiveTime.Format("2006-01-02 15:04:05"), prefix)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// DedupKey prefers the durable provenance identifier and falls back to the
// fingerprint when the store exposed none.
func (r Record) DedupKey() string {
	if r.ProvenanceID != "" {
		return r.ProvenanceID
	}
	return r.Fingerprint()
}
