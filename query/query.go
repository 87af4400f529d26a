// Package query runs the window query against a mail store as a prioritized
// chain of filter strategies with a common client-side post-condition.
package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hwen/policy-digest/mailstore"
	"github.com/hwen/policy-digest/stats"
	"github.com/hwen/policy-digest/timewindow"
)

// Error reports that every filter tier failed. It is distinct from an empty
// result: zero messages in the window is a success, an exhausted strategy
// chain is not.
type Error struct {
	Folder string
	Window timewindow.Window
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("query folder %q window %s: all filter tiers failed: %v", e.Folder, e.Window, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Engine issues the tiered search and owns the authoritative window check.
type Engine struct {
	store     mailstore.Store
	logger    *slog.Logger
	collector *stats.Collector
}

func NewEngine(store mailstore.Store, logger *slog.Logger, collector *stats.Collector) *Engine {
	return &Engine{store: store, logger: logger, collector: collector}
}

// Run returns the candidate items of the window, client-side validated.
//
// Tier 1 pushes the structured date range to the store. On a filter error or
// zero in-window results it falls through to tier 2, a plain superset filter
// starting a day early. Store filters only narrow; membership is always
// decided here, against each item's effective time.
func (e *Engine) Run(ctx context.Context, folderPath string, w timewindow.Window) ([]mailstore.Item, error) {
	if w.IsEmpty() {
		e.logger.Info("window is empty; nothing to query", "window", w.String())
		return nil, nil
	}

	tiers := []mailstore.Filter{
		{Tier: mailstore.TierStructured, Since: w.Since, Until: w.Until},
		{Tier: mailstore.TierString, Since: w.Since.AddDate(0, 0, -1)},
	}

	var (
		anySucceeded bool
		lastErr      error
	)
	for _, f := range tiers {
		items, err := e.store.Search(ctx, folderPath, f)
		if err != nil {
			e.logger.Warn("store filter tier failed", "tier", f.Tier.String(), "err", err)
			lastErr = err
			continue
		}
		anySucceeded = true

		kept := e.validate(items, w)
		if len(kept) > 0 {
			e.logger.Info("filter tier yielded candidates",
				"tier", f.Tier.String(), "returned", len(items), "inWindow", len(kept))
			return kept, nil
		}
		e.logger.Info("filter tier returned no in-window candidates; trying next tier",
			"tier", f.Tier.String(), "returned", len(items))
	}

	if !anySucceeded {
		return nil, &Error{Folder: folderPath, Window: w, Err: lastErr}
	}
	return nil, nil
}

func (e *Engine) validate(items []mailstore.Item, w timewindow.Window) []mailstore.Item {
	e.collector.AddCandidates(len(items))

	kept := make([]mailstore.Item, 0, len(items))
	for _, item := range items {
		t := item.EffectiveTime()
		if t.IsZero() || !w.Contains(t) {
			e.collector.OutOfWindow()
			e.logger.Debug("dropping candidate outside window", "subject", item.Subject, "time", t)
			continue
		}
		e.collector.Validated()
		kept = append(kept, item)
	}
	return kept
}
