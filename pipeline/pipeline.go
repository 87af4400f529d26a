// Package pipeline sequences a run end to end: fetch, corpus build, the
// extraction phase and the report phase, with skip, detach and resume entry
// points.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hwen/policy-digest/corpus"
	"github.com/hwen/policy-digest/llm"
	"github.com/hwen/policy-digest/model"
	"github.com/hwen/policy-digest/output"
)

// State is the controller's observable progress marker.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateCorpusBuilt State = "corpus_built"
	StateExtracting  State = "extracting"
	StateExtracted   State = "extracted"
	StateGenerating  State = "generating"
	StateReported    State = "reported"
	StateSkipped     State = "skipped"
)

// Phase names the workflow phase a failure belongs to.
type Phase string

const (
	PhaseExtract  Phase = "extract"
	PhaseGenerate Phase = "generate"
)

// PhaseError marks a summarization failure with the phase it happened in, so
// callers can tell an extract failure from a generate failure. A generate
// failure leaves the extraction artifact on disk.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// FetchFunc produces the deduplicated, time-ordered records for the run.
type FetchFunc func(ctx context.Context) ([]model.Record, error)

// Config wires the controller. Summarizer, Writer and Fetch are required for
// a full run; JSONInput replaces Fetch and the extract phase entirely.
type Config struct {
	Summarizer llm.Summarizer
	Writer     *output.Writer
	Logger     *slog.Logger
	Fetch      FetchFunc
	PDF        corpus.PDFExtractor

	// Period is the human-readable reporting period for the generate prompt.
	Period string

	// JSONInput resumes from an existing extraction file, skipping fetch and
	// extract.
	JSONInput string
	// OnlyExtract stops the run once the extraction artifact is written.
	OnlyExtract bool
	// DumpPath writes the extract-phase payload to this file for inspection.
	DumpPath string
	// OnlyDump stops after the payload dump without calling the service.
	OnlyDump bool
	// Skip writes placeholder artifacts instead of calling the service.
	Skip bool
	// Detach runs the generate phase in a background goroutine and returns
	// without waiting for it.
	Detach bool
}

const (
	placeholderExtraction = `{"updates":[],"unknown_or_missing":[],"meta":{"notes":"summarization skipped"}}`
	placeholderReport     = "## Overview\n\n- Summarization was skipped for this run; no report was generated.\n"
)

// Controller drives one run. It is not reusable; build a new one per run.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	state State

	detachOnce sync.Once
	detachDone chan struct{}
}

func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		cfg:        cfg,
		logger:     logger,
		state:      StateIdle,
		detachDone: make(chan struct{}),
	}
}

// State returns the controller's current state. With Detach the state keeps
// moving after Run returns.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.logger.Debug("pipeline state", "state", string(s))
}

// DetachDone is closed when a detached generate phase finishes, successfully
// or not. It is never closed on non-detached runs.
func (c *Controller) DetachDone() <-chan struct{} {
	return c.detachDone
}

// Run executes the pipeline from the configured entry point. Fetch errors
// pass through unwrapped; summarization failures come back as *PhaseError.
func (c *Controller) Run(ctx context.Context) error {
	if c.cfg.JSONInput != "" {
		return c.runFromJSON(ctx)
	}

	c.setState(StateFetching)
	records, err := c.cfg.Fetch(ctx)
	if err != nil {
		return err
	}

	times := make([]time.Time, len(records))
	for i, rec := range records {
		times[i] = rec.EffectiveTime
	}
	c.cfg.Writer.SetRecordTimes(times)

	text := corpus.Build(records, c.cfg.PDF, c.logger)
	c.setState(StateCorpusBuilt)

	corpusPath, err := c.cfg.Writer.Write(output.KindCorpus, []byte(text))
	if err != nil {
		return err
	}
	c.logger.Info("corpus built", "records", len(records), "path", corpusPath)

	if len(records) == 0 {
		c.logger.Warn("no records in window, writing placeholder artifacts")
		return c.writePlaceholders()
	}

	if c.cfg.DumpPath != "" {
		payload := "[[FILE:" + c.cfg.Writer.FileName(output.KindCorpus) + "]]\n" + text
		if err := output.WriteAtomic(c.cfg.DumpPath, []byte(payload)); err != nil {
			return fmt.Errorf("dump payload: %w", err)
		}
		c.logger.Info("payload dumped", "path", c.cfg.DumpPath)
		if c.cfg.OnlyDump {
			c.setState(StateSkipped)
			return nil
		}
	}

	if c.cfg.Skip {
		c.logger.Info("summarization skipped by configuration")
		return c.writePlaceholders()
	}

	c.setState(StateExtracting)
	extraction, err := c.cfg.Summarizer.ExtractUpdates(ctx, text, c.cfg.Writer.FileName(output.KindCorpus))
	if err != nil {
		return &PhaseError{Phase: PhaseExtract, Err: err}
	}
	if _, err := c.cfg.Writer.Write(output.KindExtraction, []byte(extraction)); err != nil {
		return &PhaseError{Phase: PhaseExtract, Err: err}
	}
	c.setState(StateExtracted)

	if c.cfg.OnlyExtract {
		c.logger.Info("stopping after extraction")
		return nil
	}
	return c.generate(ctx, extraction)
}

func (c *Controller) runFromJSON(ctx context.Context) error {
	data, err := os.ReadFile(c.cfg.JSONInput)
	if err != nil {
		return fmt.Errorf("read extraction input: %w", err)
	}
	extraction := strings.TrimSpace(string(data))
	c.logger.Info("resuming from extraction file", "path", c.cfg.JSONInput, "bytes", len(extraction))
	c.setState(StateExtracted)

	if c.cfg.Skip {
		return c.writePlaceholders()
	}
	return c.generate(ctx, extraction)
}

func (c *Controller) generate(ctx context.Context, extraction string) error {
	if c.cfg.Detach {
		c.setState(StateGenerating)
		c.logger.Info("report generation detached")
		// Detached work must survive the caller's cancellation.
		bg := context.WithoutCancel(ctx)
		go func() {
			defer c.detachOnce.Do(func() { close(c.detachDone) })
			if err := c.generateAndWrite(bg, extraction); err != nil {
				c.logger.Error("detached report generation failed", "err", err)
				return
			}
			c.setState(StateReported)
		}()
		return nil
	}

	c.setState(StateGenerating)
	if err := c.generateAndWrite(ctx, extraction); err != nil {
		return err
	}
	c.setState(StateReported)
	return nil
}

func (c *Controller) generateAndWrite(ctx context.Context, extraction string) error {
	report, err := c.cfg.Summarizer.GenerateReport(ctx, extraction, c.cfg.Period)
	if err != nil {
		return &PhaseError{Phase: PhaseGenerate, Err: err}
	}
	if _, err := c.cfg.Writer.Write(output.KindReport, []byte(report)); err != nil {
		return &PhaseError{Phase: PhaseGenerate, Err: err}
	}
	return nil
}

// writePlaceholders keeps the artifact set complete when no summarization
// runs, so every run directory stays self-describing.
func (c *Controller) writePlaceholders() error {
	if _, err := c.cfg.Writer.Write(output.KindExtraction, []byte(placeholderExtraction)); err != nil {
		return err
	}
	if _, err := c.cfg.Writer.Write(output.KindReport, []byte(placeholderReport)); err != nil {
		return err
	}
	c.setState(StateSkipped)
	return nil
}
