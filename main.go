package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hwen/policy-digest/config"
	"github.com/hwen/policy-digest/dedupe"
	"github.com/hwen/policy-digest/folder"
	"github.com/hwen/policy-digest/llm"
	"github.com/hwen/policy-digest/mailstore"
	"github.com/hwen/policy-digest/model"
	"github.com/hwen/policy-digest/normalize"
	"github.com/hwen/policy-digest/output"
	"github.com/hwen/policy-digest/pipeline"
	"github.com/hwen/policy-digest/query"
	"github.com/hwen/policy-digest/stats"
	"github.com/hwen/policy-digest/timewindow"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "policy-digest",
		Short:         "Collect lender policy-update mail and produce a weekly digest",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting policy-digest", "mailbox", cfg.Mailbox, "folder", cfg.FolderPath)

			return run(cmd.Context(), cfg, logger)
		},
	}
	config.RegisterFlags(rootCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// Exit codes keep failure classes scriptable: 2 configuration, 3 folder
// resolution, 4 mail query, 6 extract phase, 7 generate phase.
func exitCode(err error) int {
	var (
		cfgErr      *config.Error
		notFoundErr *folder.NotFoundError
		queryErr    *query.Error
		phaseErr    *pipeline.PhaseError
	)
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, timewindow.ErrBadDate):
		return 2
	case errors.As(err, &notFoundErr):
		return 3
	case errors.As(err, &queryErr):
		return 4
	case errors.As(err, &phaseErr):
		if phaseErr.Phase == pipeline.PhaseExtract {
			return 6
		}
		return 7
	default:
		return 1
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	w, err := timewindow.Resolve(timewindow.Options{
		Since: cfg.Since,
		Until: cfg.Until,
		Days:  cfg.Days,
	})
	if err != nil {
		return err
	}
	if w.Swapped {
		logger.Warn("since was after until, dates swapped", "window", w.String())
	}
	if w.IsEmpty() {
		logger.Warn("time window is empty, nothing will match", "window", w.String())
	}

	collector := stats.NewCollector()
	writer := output.NewWriter(output.RunDir(cfg.OutDir, w), w, logger)

	var store mailstore.Store
	if cfg.NeedsStore() {
		store, err = openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			_ = store.Close()
		}()
	}

	if cfg.ListMailboxes {
		return listMailboxes(ctx, store)
	}
	if cfg.ListFolders {
		root, err := store.Folders(ctx)
		if err != nil {
			return err
		}
		return folder.RenderTree(root, cfg.FoldersDepth)
	}

	folderPath := cfg.FolderPath
	if cfg.UsesIMAP() {
		// Resolve against the live tree so a typo fails with the available
		// siblings instead of a server-side select error.
		root, err := store.Folders(ctx)
		if err != nil {
			return err
		}
		node, err := folder.Resolve(root, folder.SplitPath(cfg.FolderPath))
		if err != nil {
			return err
		}
		folderPath = node.Path
		logger.Info("folder resolved", "path", folderPath)
	}

	fetch := func(ctx context.Context) ([]model.Record, error) {
		engine := query.NewEngine(store, logger, collector)
		items, err := engine.Run(ctx, folderPath, w)
		if err != nil {
			return nil, err
		}

		normalizer := normalize.New(writer.Dir(), logger, collector)
		records := make([]model.Record, 0, len(items))
		for _, item := range items {
			records = append(records, normalizer.Record(item))
		}
		return dedupe.Collapse(records, logger, collector), nil
	}

	summarizer, err := buildSummarizer(cfg, logger)
	if err != nil {
		return err
	}

	ctrl := pipeline.New(pipeline.Config{
		Summarizer:  summarizer,
		Writer:      writer,
		Logger:      logger,
		Fetch:       fetch,
		PDF:         normalize.PDFText,
		Period:      w.Period(),
		JSONInput:   cfg.JSONInput,
		OnlyExtract: cfg.OnlyExtract,
		DumpPath:    cfg.DumpPayload,
		OnlyDump:    cfg.OnlyDump,
		Skip:        cfg.SkipLLM,
		Detach:      cfg.Detach,
	})

	runErr := ctrl.Run(ctx)

	summary := collector.Snapshot()
	logger.Info("run finished", append([]any{
		"state", string(ctrl.State()),
		"window", w.String(),
		"outDir", writer.Dir(),
	}, summary.LogAttrs()...)...)

	return runErr
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (mailstore.Store, error) {
	switch {
	case cfg.MockEmails:
		logger.Info("using synthetic mail source")
		return mailstore.NewMock(logger), nil
	case cfg.MboxPath != "":
		logger.Info("reading local mbox archive", "path", cfg.MboxPath)
		return mailstore.OpenMbox(cfg.MboxPath, logger)
	default:
		return mailstore.DialIMAP(ctx, mailstore.IMAPOptions{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Mailbox:            cfg.Mailbox,
		}, logger)
	}
}

func buildSummarizer(cfg config.Config, logger *slog.Logger) (llm.Summarizer, error) {
	if cfg.MockLLM {
		logger.Info("using local mock summarizer")
		return llm.Mock{}, nil
	}
	if cfg.WillSummarize() && cfg.APIKey == "" {
		return nil, &config.Error{Reason: "API key must be provided via --api-key or OPENAI_API_KEY"}
	}
	return llm.NewClient(llm.Options{
		BaseURL:       cfg.APIBase,
		APIKey:        cfg.APIKey,
		ExtractModel:  cfg.ModelExtract,
		GenerateModel: cfg.ModelGenerate,
		Logger:        logger,
	}), nil
}

func listMailboxes(ctx context.Context, store mailstore.Store) error {
	names, err := store.Mailboxes(ctx)
	if err != nil {
		return err
	}
	items := make([]pterm.BulletListItem, 0, len(names))
	for _, name := range names {
		items = append(items, pterm.BulletListItem{Level: 0, Text: name})
	}
	return pterm.DefaultBulletList.WithItems(items).Render()
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("policy-digest-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
