// Package stats accumulates per-run counters for the fetch and normalize
// stages and logs a single summary at the end of the run.
package stats

import "sync"

// Summary is a point-in-time copy of the run counters.
type Summary struct {
	Candidates  int // items returned by the store filters
	Validated   int // candidates that passed the client-side window check
	OutOfWindow int
	Duplicates  int
	Warnings    int // per-item normalization warnings
	Attachments int // attachments saved
}

// LogAttrs renders the summary as slog attributes.
func (s Summary) LogAttrs() []any {
	return []any{
		"candidates", s.Candidates,
		"validated", s.Validated,
		"outOfWindow", s.OutOfWindow,
		"duplicates", s.Duplicates,
		"warnings", s.Warnings,
		"attachments", s.Attachments,
	}
}

// Collector is safe for concurrent use. All methods tolerate a nil receiver
// so callers that do not care about counters can pass nil.
type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) AddCandidates(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.summary.Candidates += n
	c.mu.Unlock()
}

func (c *Collector) Validated() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.summary.Validated++
	c.mu.Unlock()
}

func (c *Collector) OutOfWindow() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.summary.OutOfWindow++
	c.mu.Unlock()
}

func (c *Collector) Duplicate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.summary.Duplicates++
	c.mu.Unlock()
}

func (c *Collector) Warning() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.summary.Warnings++
	c.mu.Unlock()
}

func (c *Collector) AttachmentSaved() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.summary.Attachments++
	c.mu.Unlock()
}

func (c *Collector) Snapshot() Summary {
	if c == nil {
		return Summary{}
	}
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}
