// Package output computes deterministic artifact names from the resolved
// time window and writes artifacts atomically into the run directory.
package output

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hwen/policy-digest/timewindow"
)

// Kind identifies one of the artifact files a run produces.
type Kind int

const (
	KindCorpus Kind = iota
	KindExtraction
	KindReport
)

func (k Kind) prefix() string {
	switch k {
	case KindCorpus:
		return "ALL"
	case KindExtraction:
		return "EXTRACT"
	default:
		return "Weekly_report"
	}
}

func (k Kind) ext() string {
	switch k {
	case KindCorpus:
		return ".txt"
	case KindExtraction:
		return ".json"
	default:
		return ".md"
	}
}

// RunDir returns the run-scoped output directory for the window, keyed by
// the window's end date.
func RunDir(base string, w timewindow.Window) string {
	_, end := w.Bounds()
	return filepath.Join(base, end.Format("20060102")+"_policy")
}

// Writer names and writes the run artifacts. File names use the label
// <KIND>_<YYMMDD>-<YYMMDD>.<ext>; with a non-empty corpus the label narrows
// to the intersection of the record dates and the requested window, while an
// empty run keeps the requested window so it stays traceable to what was
// asked for.
type Writer struct {
	dir    string
	window timewindow.Window
	times  []time.Time
	logger *slog.Logger
}

func NewWriter(dir string, w timewindow.Window, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, window: w, logger: logger}
}

func (w *Writer) Dir() string {
	return w.dir
}

// SetRecordTimes installs the effective times of the corpus records so
// subsequent names can narrow the label. A nil or empty slice keeps the
// requested window.
func (w *Writer) SetRecordTimes(times []time.Time) {
	w.times = times
}

// Label is the YYMMDD-YYMMDD portion of every artifact name.
func (w *Writer) Label() string {
	if len(w.times) == 0 {
		return w.window.Label()
	}

	lo, hi := w.times[0], w.times[0]
	for _, t := range w.times[1:] {
		if t.Before(lo) {
			lo = t
		}
		if t.After(hi) {
			hi = t
		}
	}

	start, end := w.window.Bounds()
	if lo.After(start) {
		start = lo
	}
	if hi.Before(end) {
		end = hi
	}
	return start.Format("060102") + "-" + end.Format("060102")
}

// FileName returns the base name for the artifact kind.
func (w *Writer) FileName(kind Kind) string {
	return fmt.Sprintf("%s_%s%s", kind.prefix(), w.Label(), kind.ext())
}

// Path returns the full path for the artifact kind.
func (w *Writer) Path(kind Kind) string {
	return filepath.Join(w.dir, w.FileName(kind))
}

// Write writes one artifact atomically and returns its path.
func (w *Writer) Write(kind Kind, data []byte) (string, error) {
	path := w.Path(kind)
	if err := WriteAtomic(path, data); err != nil {
		return "", fmt.Errorf("write %s artifact: %w", kind.prefix(), err)
	}
	if w.logger != nil {
		w.logger.Info("artifact written", "path", path, "bytes", len(data))
	}
	return path, nil
}

// WriteAtomic writes data to a temp file in the destination directory and
// renames it into place, so an interrupted write never leaves a file with a
// valid name but truncated content.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
