package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hwen/policy-digest/model"
	"github.com/hwen/policy-digest/output"
	"github.com/hwen/policy-digest/timewindow"
)

type stubSummarizer struct {
	extractions int
	generations int
	extractErr  error
	generateErr error
}

func (s *stubSummarizer) ExtractUpdates(_ context.Context, _, _ string) (string, error) {
	s.extractions++
	if s.extractErr != nil {
		return "", s.extractErr
	}
	return `{"updates":[],"unknown_or_missing":[],"meta":{"notes":"stub"}}`, nil
}

func (s *stubSummarizer) GenerateReport(_ context.Context, _, _ string) (string, error) {
	s.generations++
	if s.generateErr != nil {
		return "", s.generateErr
	}
	return "## Overview\n\n- stub report\n", nil
}

func testWindow(t *testing.T) timewindow.Window {
	t.Helper()
	w, err := timewindow.Resolve(timewindow.Options{Since: "2025-08-10", Until: "2025-08-21"})
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func testRecords() []model.Record {
	return []model.Record{
		{
			Subject:       "Rate change",
			Sender:        "lender@example.com",
			EffectiveTime: time.Date(2025, 8, 12, 10, 0, 0, 0, time.Local),
			Body:          "Fixed rates drop 10bp.",
		},
	}
}

func fetchRecords(recs []model.Record) FetchFunc {
	return func(context.Context) ([]model.Record, error) {
		return recs, nil
	}
}

func mustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("%s should not exist", path)
	}
}

func mustExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("%s missing: %v", path, err)
	}
}

func TestRun_FullWritesAllArtifacts(t *testing.T) {
	w := testWindow(t)
	writer := output.NewWriter(t.TempDir(), w, nil)
	summarizer := &stubSummarizer{}

	c := New(Config{
		Summarizer: summarizer,
		Writer:     writer,
		Fetch:      fetchRecords(testRecords()),
		Period:     w.Period(),
	})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := c.State(); got != StateReported {
		t.Errorf("state = %s, want %s", got, StateReported)
	}
	mustExist(t, writer.Path(output.KindCorpus))
	mustExist(t, writer.Path(output.KindExtraction))
	mustExist(t, writer.Path(output.KindReport))
	if summarizer.extractions != 1 || summarizer.generations != 1 {
		t.Errorf("calls = %d/%d, want 1/1", summarizer.extractions, summarizer.generations)
	}
}

func TestRun_OnlyExtractStopsBeforeGenerate(t *testing.T) {
	w := testWindow(t)
	writer := output.NewWriter(t.TempDir(), w, nil)
	summarizer := &stubSummarizer{}

	c := New(Config{
		Summarizer:  summarizer,
		Writer:      writer,
		Fetch:       fetchRecords(testRecords()),
		OnlyExtract: true,
	})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := c.State(); got != StateExtracted {
		t.Errorf("state = %s, want %s", got, StateExtracted)
	}
	mustExist(t, writer.Path(output.KindExtraction))
	mustNotExist(t, writer.Path(output.KindReport))
	if summarizer.generations != 0 {
		t.Errorf("generate called %d times on only-extract run", summarizer.generations)
	}
}

func TestRun_JSONInputSkipsFetchAndExtract(t *testing.T) {
	w := testWindow(t)
	writer := output.NewWriter(t.TempDir(), w, nil)
	summarizer := &stubSummarizer{}

	input := filepath.Join(t.TempDir(), "extract.json")
	if err := os.WriteFile(input, []byte(`{"updates":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(Config{
		Summarizer: summarizer,
		Writer:     writer,
		Fetch: func(context.Context) ([]model.Record, error) {
			t.Error("fetch must not run with a JSON input")
			return nil, nil
		},
		JSONInput: input,
	})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summarizer.extractions != 0 {
		t.Errorf("extract called %d times on resume run", summarizer.extractions)
	}
	mustExist(t, writer.Path(output.KindReport))
	mustNotExist(t, writer.Path(output.KindCorpus))
}

func TestRun_SkipWritesPlaceholders(t *testing.T) {
	w := testWindow(t)
	writer := output.NewWriter(t.TempDir(), w, nil)
	summarizer := &stubSummarizer{}

	c := New(Config{
		Summarizer: summarizer,
		Writer:     writer,
		Fetch:      fetchRecords(testRecords()),
		Skip:       true,
	})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := c.State(); got != StateSkipped {
		t.Errorf("state = %s, want %s", got, StateSkipped)
	}
	if summarizer.extractions != 0 || summarizer.generations != 0 {
		t.Error("skip run must not call the summarizer")
	}
	mustExist(t, writer.Path(output.KindExtraction))
	mustExist(t, writer.Path(output.KindReport))
}

func TestRun_GenerateFailureKeepsExtraction(t *testing.T) {
	w := testWindow(t)
	writer := output.NewWriter(t.TempDir(), w, nil)
	summarizer := &stubSummarizer{generateErr: errors.New("boom")}

	c := New(Config{
		Summarizer: summarizer,
		Writer:     writer,
		Fetch:      fetchRecords(testRecords()),
	})
	err := c.Run(context.Background())

	var phaseErr *PhaseError
	if !errors.As(err, &phaseErr) {
		t.Fatalf("Run() error = %v, want *PhaseError", err)
	}
	if phaseErr.Phase != PhaseGenerate {
		t.Errorf("phase = %s, want %s", phaseErr.Phase, PhaseGenerate)
	}
	mustExist(t, writer.Path(output.KindExtraction))
	mustNotExist(t, writer.Path(output.KindReport))
}

func TestRun_ExtractFailure(t *testing.T) {
	w := testWindow(t)
	writer := output.NewWriter(t.TempDir(), w, nil)
	summarizer := &stubSummarizer{extractErr: errors.New("boom")}

	c := New(Config{
		Summarizer: summarizer,
		Writer:     writer,
		Fetch:      fetchRecords(testRecords()),
	})
	err := c.Run(context.Background())

	var phaseErr *PhaseError
	if !errors.As(err, &phaseErr) {
		t.Fatalf("Run() error = %v, want *PhaseError", err)
	}
	if phaseErr.Phase != PhaseExtract {
		t.Errorf("phase = %s, want %s", phaseErr.Phase, PhaseExtract)
	}
}

func TestRun_EmptyCorpusUsesRequestedWindowNames(t *testing.T) {
	w := testWindow(t)
	writer := output.NewWriter(t.TempDir(), w, nil)
	summarizer := &stubSummarizer{}

	c := New(Config{
		Summarizer: summarizer,
		Writer:     writer,
		Fetch:      fetchRecords(nil),
	})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := c.State(); got != StateSkipped {
		t.Errorf("state = %s, want %s", got, StateSkipped)
	}
	if summarizer.extractions != 0 {
		t.Error("empty corpus must not reach the extract phase")
	}
	if name := writer.FileName(output.KindCorpus); name != "ALL_250810-250821.txt" {
		t.Errorf("corpus name = %q", name)
	}
	mustExist(t, filepath.Join(writer.Dir(), "ALL_250810-250821.txt"))
	mustExist(t, filepath.Join(writer.Dir(), "EXTRACT_250810-250821.json"))
	mustExist(t, filepath.Join(writer.Dir(), "Weekly_report_250810-250821.md"))
}

func TestRun_OnlyDumpStopsAfterPayload(t *testing.T) {
	w := testWindow(t)
	writer := output.NewWriter(t.TempDir(), w, nil)
	summarizer := &stubSummarizer{}
	dump := filepath.Join(t.TempDir(), "payload.txt")

	c := New(Config{
		Summarizer: summarizer,
		Writer:     writer,
		Fetch:      fetchRecords(testRecords()),
		DumpPath:   dump,
		OnlyDump:   true,
	})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mustExist(t, dump)
	if summarizer.extractions != 0 {
		t.Error("only-dump run must not call the summarizer")
	}
	data, err := os.ReadFile(dump)
	if err != nil {
		t.Fatal(err)
	}
	wantHeader := "[[FILE:" + writer.FileName(output.KindCorpus) + "]]"
	if got := string(data); len(got) == 0 || got[:len(wantHeader)] != wantHeader {
		t.Errorf("payload missing file header, got %.60q", got)
	}
}

func TestRun_DetachReturnsBeforeReport(t *testing.T) {
	w := testWindow(t)
	writer := output.NewWriter(t.TempDir(), w, nil)
	summarizer := &stubSummarizer{}

	c := New(Config{
		Summarizer: summarizer,
		Writer:     writer,
		Fetch:      fetchRecords(testRecords()),
		Detach:     true,
	})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	select {
	case <-c.DetachDone():
	case <-time.After(5 * time.Second):
		t.Fatal("detached generation did not finish")
	}
	if got := c.State(); got != StateReported {
		t.Errorf("state = %s, want %s", got, StateReported)
	}
	mustExist(t, writer.Path(output.KindReport))
}
