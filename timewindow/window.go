package timewindow

import (
	"errors"
	"fmt"
	"time"
)

// ErrBadDate marks a date string that matched none of the accepted layouts.
var ErrBadDate = errors.New("invalid date")

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006.01.02"}

// Window is the half-open local-time interval [Since, Until) used to select
// messages. Both bounds are naive local timestamps; all comparisons assume a
// single local timezone context.
type Window struct {
	Since time.Time
	Until time.Time

	// Swapped records that the inputs arrived inverted and were corrected.
	Swapped bool
}

// Options are the raw window inputs. Since and Until are date strings
// (YYYY-MM-DD, also accepted with / or . separators); Days is the lookback
// applied when Since is absent. Now exists for tests; zero means time.Now.
type Options struct {
	Since string
	Until string
	Days  int
	Now   time.Time
}

// ParseDate parses a date string in the local timezone.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w %q (expected YYYY-MM-DD)", ErrBadDate, s)
}

// Resolve turns the raw inputs into a normalized Window.
//
// An explicit Until names a whole day, so the bound becomes midnight of the
// following day; otherwise the window ends now. An explicit Since starts at
// midnight of the named day; otherwise it is Until minus Days. Inverted bounds
// are swapped and the swap recorded, never fatal.
func Resolve(opts Options) (Window, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	until := now
	if opts.Until != "" {
		day, err := ParseDate(opts.Until)
		if err != nil {
			return Window{}, err
		}
		until = day.AddDate(0, 0, 1)
	}

	var since time.Time
	if opts.Since != "" {
		day, err := ParseDate(opts.Since)
		if err != nil {
			return Window{}, err
		}
		since = day
	} else {
		days := opts.Days
		if days < 0 {
			return Window{}, fmt.Errorf("days must not be negative, got %d", days)
		}
		since = until.AddDate(0, 0, -days)
	}

	w := Window{Since: since, Until: until}
	if since.After(until) {
		w.Since, w.Until = until, since
		w.Swapped = true
	}
	return w, nil
}

// Contains reports whether t falls inside the half-open interval.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Since) && t.Before(w.Until)
}

// IsEmpty reports a zero-width (or degenerate) window. Such a window selects
// nothing and yields an empty corpus.
func (w Window) IsEmpty() bool {
	return !w.Since.Before(w.Until)
}

// Bounds returns the inclusive date bounds of the window: the first and the
// last instant a message may carry and still be a member. Used for naming.
func (w Window) Bounds() (time.Time, time.Time) {
	end := w.Until
	if w.Until.After(w.Since) {
		end = w.Until.Add(-time.Second)
	}
	return w.Since, end
}

// Label renders the window as YYMMDD-YYMMDD for artifact file names.
func (w Window) Label() string {
	start, end := w.Bounds()
	return start.Format("060102") + "-" + end.Format("060102")
}

// Period renders the window for human-facing report headers.
func (w Window) Period() string {
	start, end := w.Bounds()
	return start.Format("2006-01-02") + " - " + end.Format("2006-01-02")
}

func (w Window) String() string {
	return w.Since.Format("2006-01-02 15:04:05") + " -> " + w.Until.Format("2006-01-02 15:04:05")
}
