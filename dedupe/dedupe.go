// Package dedupe collapses the window's candidate records into the corpus.
package dedupe

import (
	"log/slog"
	"sort"

	"github.com/hwen/policy-digest/model"
	"github.com/hwen/policy-digest/stats"
)

// Collapse drops records whose dedup key was already seen, keeping the
// first occurrence in retrieval order, then sorts the survivors by effective
// time ascending. The sort happens after, and independently of, key
// selection. Running Collapse on its own output is a no-op.
func Collapse(records []model.Record, logger *slog.Logger, collector *stats.Collector) []model.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]model.Record, 0, len(records))
	for _, rec := range records {
		key := rec.DedupKey()
		if _, dup := seen[key]; dup {
			collector.Duplicate()
			if logger != nil {
				logger.Info("dropping duplicate message", "key", key, "subject", rec.Subject)
			}
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveTime.Before(out[j].EffectiveTime)
	})
	return out
}
