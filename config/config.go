// Package config defines the CLI surface and its environment fallbacks.
package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Error marks invalid configuration, as opposed to runtime failures.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "invalid configuration: " + e.Reason
}

// Config captures all options required to run a digest.
type Config struct {
	Mailbox    string
	FolderPath string

	Days  int
	Since string
	Until string

	OutDir string

	JSONInput   string
	OnlyExtract bool
	OnlyDump    bool
	DumpPayload string

	APIBase       string
	APIKey        string
	ModelExtract  string
	ModelGenerate string

	MockEmails bool
	MockLLM    bool
	SkipLLM    bool
	Detach     bool

	ListMailboxes bool
	ListFolders   bool
	FoldersDepth  int

	MboxPath           string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool

	LogLevel string
	LogDir   string
}

// envBindings maps flag names to the environment variables that back them
// when the flag is not set on the command line.
var envBindings = map[string]string{
	"mailbox":        "MAIL_MAILBOX",
	"folder":         "MAIL_FOLDER_PATH",
	"api-key":        "OPENAI_API_KEY",
	"api-base":       "OPENAI_API_BASE",
	"model-extract":  "OPENAI_MODEL_EXTRACT",
	"model-generate": "OPENAI_MODEL_GENERATE",
	"skip-llm":       "SKIP_OPENAI",
	"detach":         "DETACH_OPENAI",
	"mock-emails":    "USE_MOCK_EMAILS",
	"dump-payload":   "DUMP_PAYLOAD_PATH",
	"imap-host":      "IMAP_HOST",
	"imap-port":      "IMAP_PORT",
	"imap-user":      "IMAP_USER",
	"imap-pass":      "IMAP_PASS",
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.String("mailbox", "", "Account mailbox to read (e.g. user@example.com)")
	flags.String("folder", "", "Folder path below the mailbox root, segments split on / \\ > |")

	flags.Int("days", 7, "Look-back window in days, ignored when --since is set")
	flags.String("since", "", "Window start date (YYYY-MM-DD), inclusive")
	flags.String("until", "", "Window end date (YYYY-MM-DD), inclusive; defaults to today")

	flags.String("out-dir", "output", "Base directory for run artifacts")

	flags.String("json-input", "", "Existing extraction JSON file; skips fetch and extract")
	flags.Bool("only-extract", false, "Stop after writing the extraction artifact")
	flags.Bool("only-dump", false, "Stop after dumping the request payload (requires --dump-payload)")
	flags.String("dump-payload", "", "Write the extract-phase request payload to this file")

	flags.String("api-base", "", "OpenAI-compatible API base URL")
	flags.String("api-key", "", "API key (falls back to OPENAI_API_KEY env var)")
	flags.String("model-extract", "gpt-4.1-mini", "Model for the extraction phase")
	flags.String("model-generate", "gpt-4.1", "Model for the report phase")

	flags.Bool("mock-emails", false, "Use a synthetic mail source instead of a real mailbox")
	flags.Bool("mock-llm", false, "Use a local deterministic summarizer")
	flags.Bool("skip-llm", false, "Skip summarization and write placeholder artifacts")
	flags.Bool("detach", false, "Run report generation in the background and exit")

	flags.Bool("list-mailboxes", false, "List reachable mailboxes and exit")
	flags.Bool("list-folders", false, "Print the folder tree of the mailbox and exit")
	flags.Int("folders-depth", 2, "Folder tree depth for --list-folders")

	flags.String("mbox", "", "Read mail from a local .mbox archive instead of IMAP")
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")

	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Tee logs into a timestamped file under this directory")
}

// LoadConfig resolves the parsed flags, layered over their environment
// fallbacks, into a validated Config.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, err
	}
	for flag, env := range envBindings {
		if err := v.BindEnv(flag, env); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		Mailbox:    v.GetString("mailbox"),
		FolderPath: v.GetString("folder"),

		Days:  v.GetInt("days"),
		Since: v.GetString("since"),
		Until: v.GetString("until"),

		OutDir: v.GetString("out-dir"),

		JSONInput:   v.GetString("json-input"),
		OnlyExtract: v.GetBool("only-extract"),
		OnlyDump:    v.GetBool("only-dump"),
		DumpPayload: v.GetString("dump-payload"),

		APIBase:       v.GetString("api-base"),
		APIKey:        v.GetString("api-key"),
		ModelExtract:  v.GetString("model-extract"),
		ModelGenerate: v.GetString("model-generate"),

		MockEmails: v.GetBool("mock-emails"),
		MockLLM:    v.GetBool("mock-llm"),
		SkipLLM:    v.GetBool("skip-llm"),
		Detach:     v.GetBool("detach"),

		ListMailboxes: v.GetBool("list-mailboxes"),
		ListFolders:   v.GetBool("list-folders"),
		FoldersDepth:  v.GetInt("folders-depth"),

		MboxPath:           v.GetString("mbox"),
		IMAPHost:           v.GetString("imap-host"),
		IMAPPort:           v.GetInt("imap-port"),
		IMAPUser:           v.GetString("imap-user"),
		IMAPPass:           v.GetString("imap-pass"),
		UseTLS:             v.GetBool("use-tls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),

		LogLevel: strings.ToLower(v.GetString("log-level")),
		LogDir:   v.GetString("log-dir"),
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NeedsStore reports whether the run has to open a mail source at all.
func (c Config) NeedsStore() bool {
	return c.JSONInput == ""
}

// UsesIMAP reports whether the run reaches a live IMAP server.
func (c Config) UsesIMAP() bool {
	return c.NeedsStore() && !c.MockEmails && c.MboxPath == ""
}

// WillSummarize reports whether the run will call the external service.
func (c Config) WillSummarize() bool {
	return !c.SkipLLM && !c.MockLLM && !c.OnlyDump
}

func validateConfig(cfg Config) error {
	if cfg.Days < 0 {
		return &Error{Reason: "--days must not be negative"}
	}
	if cfg.OnlyDump && cfg.DumpPayload == "" {
		return &Error{Reason: "--only-dump requires --dump-payload"}
	}
	if cfg.JSONInput != "" && cfg.OnlyExtract {
		return &Error{Reason: "--json-input and --only-extract are mutually exclusive"}
	}
	if cfg.FoldersDepth < 1 {
		return &Error{Reason: "--folders-depth must be at least 1"}
	}
	if (cfg.ListMailboxes || cfg.ListFolders) && cfg.JSONInput != "" {
		return &Error{Reason: "discovery flags cannot be combined with --json-input"}
	}

	if cfg.UsesIMAP() {
		if cfg.IMAPHost == "" {
			return &Error{Reason: "--imap-host is required (or IMAP_HOST)"}
		}
		if cfg.IMAPUser == "" {
			return &Error{Reason: "--imap-user is required (or IMAP_USER)"}
		}
		if cfg.IMAPPass == "" {
			return &Error{Reason: "IMAP password must be provided via --imap-pass or IMAP_PASS"}
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return &Error{Reason: "--imap-port must be between 1 and 65535"}
		}
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &Error{Reason: "invalid --log-level: " + cfg.LogLevel}
	}

	return nil
}
