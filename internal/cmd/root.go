package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openmarket/openmarket-cli/internal/api"
	"github.com/openmarket/openmarket-cli/internal/config"
	"github.com/openmarket/openmarket-cli/internal/debug"
	"github.com/openmarket/openmarket-cli/internal/dryrun"
	"github.com/openmarket/openmarket-cli/internal/iocontext"
	"github.com/openmarket/openmarket-cli/internal/outfmt"
)

// rootFlags holds global CLI flags
type rootFlags struct {
	Output    string
	JSON      bool
	Compact   bool
	Debug     bool
	LogJSON   bool
	DryRun    bool
	Quiet     bool
	Silent    bool
	NoInput   bool
	Yes       bool
	Query     string
	JQ        string
	Template  string
	Host      string
	ConfigDir string
	Timeout   time.Duration

	MaxRateLimitRetries     int
	Max5xxRetries           int
	RateLimitDelay          time.Duration
	ServerErrorDelay        time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerResetTime time.Duration

	MaxRateLimitRetriesSet     bool
	Max5xxRetriesSet           bool
	RateLimitDelaySet          bool
	ServerErrorDelaySet        bool
	CircuitBreakerThresholdSet bool
	CircuitBreakerResetTimeSet bool
}

// flags holds the global command flags. This is package-level mutable state
// that MUST be reset at the start of every Execute() call. Tests depend on
// this reset to get clean state.
var flags = defaultFlags()

func defaultFlags() rootFlags {
	return rootFlags{
		Output:  defaultOutput(),
		Timeout: api.DefaultTimeout,
	}
}

func defaultOutput() string {
	value := strings.TrimSpace(os.Getenv("OPENMARKET_OUTPUT"))
	if value != "" {
		return normalizeOutputFormat(value)
	}
	return "text"
}

func normalizeOutputFormat(value string) string {
	value = strings.TrimSpace(value)
	if value == "ndjson" {
		return "jsonl"
	}
	return value
}

// Execute runs the root command
func Execute(ctx context.Context, args []string) error {
	// Runs before the reset so OPENMARKET_OUTPUT from ~/.openmarket/.env
	// feeds the flag defaults.
	config.LoadDotEnv()
	flags = defaultFlags()

	root := &cobra.Command{
		Use:                "om",
		Short:              "CLI for the OpenMarket product API",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true, // enhanceUnknownError does this
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			flags.Output = normalizeOutputFormat(flags.Output)
			if flags.Yes {
				flags.NoInput = true
			}

			if flags.JSON {
				if flagOrAliasChanged(cmd, "output") && flags.Output != "json" {
					return fmt.Errorf("--json conflicts with --output %s", flags.Output)
				}
				flags.Output = "json"
			}
			needsJSON := getJQQuery() != "" || flags.Template != ""
			if needsJSON && flags.Output != "json" && flags.Output != "jsonl" {
				if flagOrAliasChanged(cmd, "output") {
					return fmt.Errorf("--jq/--query/--template require --output json or jsonl (or --json)")
				}
				flags.Output = "json"
			}

			mode, err := outfmt.Parse(flags.Output)
			if err != nil {
				return err
			}
			ctx = outfmt.WithMode(ctx, mode)
			ctx = outfmt.WithCompact(ctx, flags.Compact)

			streams := *iocontext.GetIO(ctx)
			ioStreams := &streams
			if flags.Silent || flags.Quiet {
				ioStreams.ErrOut = io.Discard
			}
			if flags.Quiet && mode == outfmt.Text {
				ioStreams.Out = io.Discard
			}
			ctx = iocontext.WithIO(ctx, ioStreams)
			cmd.SetOut(ioStreams.Out)
			cmd.SetErr(ioStreams.ErrOut)

			debug.SetupLogger(debug.LoggerOptions{
				Debug:  flags.Debug,
				JSON:   flags.LogJSON || parseBoolEnv("OPENMARKET_LOG_JSON"),
				Writer: ioStreams.ErrOut,
			})
			ctx = debug.WithDebug(ctx, flags.Debug)
			ctx = dryrun.WithDryRun(ctx, flags.DryRun)

			if query := getJQQuery(); query != "" {
				ctx = outfmt.WithQuery(ctx, query)
			}
			if flags.Template != "" {
				tmpl, err := loadTemplate(flags.Template)
				if err != nil {
					return err
				}
				ctx = outfmt.WithTemplate(ctx, tmpl)
			}

			if err := captureRetryOverrides(cmd); err != nil {
				return err
			}

			cmd.SetContext(ctx)
			return nil
		},
	}

	root.SetContext(ctx)
	root.SetArgs(args)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.Output, "output", "o", flags.Output, "Output format: text|json|jsonl|ndjson (env OPENMARKET_OUTPUT)")
	pf.BoolVarP(&flags.JSON, "json", "j", false, "Shorthand for --output json")
	pf.BoolVar(&flags.Compact, "compact-json", false, "Compact JSON output (no indentation)")
	pf.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&flags.LogJSON, "log-json", false, "Write logs as JSON (env OPENMARKET_LOG_JSON=1)")
	pf.BoolVar(&flags.DryRun, "dry-run", false, "Preview requests without sending them")
	pf.StringVarP(&flags.Query, "query", "q", "", "JQ expression to filter JSON output")
	pf.StringVar(&flags.JQ, "jq", "", "Alias for --query")
	pf.StringVar(&flags.Template, "template", "", "Go template string (or @path) to render JSON output")
	pf.BoolVarP(&flags.Quiet, "quiet", "Q", false, "Suppress non-essential output")
	pf.BoolVar(&flags.Silent, "silent", false, "Suppress non-error output to stderr")
	pf.BoolVar(&flags.NoInput, "no-input", false, "Disable interactive prompts")
	pf.BoolVarP(&flags.Yes, "yes", "y", false, "Skip confirmation prompts")
	pf.StringVar(&flags.Host, "host", "", "API host, overrides the stored profile and OPENMARKET_HOST")
	pf.StringVar(&flags.ConfigDir, "config-dir", "", "Directory holding config.yaml (env OPENMARKET_CONFIG_DIR)")
	pf.DurationVar(&flags.Timeout, "timeout", flags.Timeout, "HTTP request timeout (e.g., 30s, 2m)")
	pf.IntVar(&flags.MaxRateLimitRetries, "max-rate-limit-retries", 0, "Max retries for 429 responses (overrides env)")
	pf.IntVar(&flags.Max5xxRetries, "max-5xx-retries", 0, "Max retries for 5xx responses (overrides env)")
	pf.DurationVar(&flags.RateLimitDelay, "rate-limit-delay", 0, "Base delay for 429 retries (e.g., 1s; overrides env)")
	pf.DurationVar(&flags.ServerErrorDelay, "server-error-delay", 0, "Delay between 5xx retries (e.g., 1s; overrides env)")
	pf.IntVar(&flags.CircuitBreakerThreshold, "circuit-breaker-threshold", 0, "Failures before circuit opens (overrides env)")
	pf.DurationVar(&flags.CircuitBreakerResetTime, "circuit-breaker-reset-time", 0, "Circuit breaker reset time (e.g., 30s; overrides env)")

	flagAlias(pf, "dry-run", "dr")
	flagAlias(pf, "output", "out")
	flagAlias(pf, "compact-json", "cj")
	flagAlias(pf, "debug", "dbg")
	flagAlias(pf, "no-input", "ni")
	flagAlias(pf, "template", "tpl")
	flagAlias(pf, "timeout", "to")
	flagAlias(pf, "max-rate-limit-retries", "max-rl")
	flagAlias(pf, "max-5xx-retries", "m5x")
	flagAlias(pf, "circuit-breaker-threshold", "cbt")

	root.AddCommand(newAuthCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newProductsCmd())
	root.AddCommand(newThumbnailsCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newVersionCmd())

	targetCmd, err := root.ExecuteC()
	if err != nil {
		if !errors.Is(err, errAlreadyHandled) {
			_, _ = fmt.Fprintln(root.ErrOrStderr(), enhanceUnknownError(err, root, targetCmd))
		}
		return err
	}
	return nil
}

func captureRetryOverrides(cmd *cobra.Command) error {
	flags.MaxRateLimitRetriesSet = flagOrAliasChanged(cmd, "max-rate-limit-retries")
	flags.Max5xxRetriesSet = flagOrAliasChanged(cmd, "max-5xx-retries")
	flags.RateLimitDelaySet = flagOrAliasChanged(cmd, "rate-limit-delay")
	flags.ServerErrorDelaySet = flagOrAliasChanged(cmd, "server-error-delay")
	flags.CircuitBreakerThresholdSet = flagOrAliasChanged(cmd, "circuit-breaker-threshold")
	flags.CircuitBreakerResetTimeSet = flagOrAliasChanged(cmd, "circuit-breaker-reset-time")

	switch {
	case flags.MaxRateLimitRetriesSet && flags.MaxRateLimitRetries < 0:
		return fmt.Errorf("--max-rate-limit-retries must be >= 0")
	case flags.Max5xxRetriesSet && flags.Max5xxRetries < 0:
		return fmt.Errorf("--max-5xx-retries must be >= 0")
	case flags.RateLimitDelaySet && flags.RateLimitDelay < 0:
		return fmt.Errorf("--rate-limit-delay must be >= 0")
	case flags.ServerErrorDelaySet && flags.ServerErrorDelay < 0:
		return fmt.Errorf("--server-error-delay must be >= 0")
	case flags.CircuitBreakerThresholdSet && flags.CircuitBreakerThreshold < 0:
		return fmt.Errorf("--circuit-breaker-threshold must be >= 0")
	case flags.CircuitBreakerResetTimeSet && flags.CircuitBreakerResetTime < 0:
		return fmt.Errorf("--circuit-breaker-reset-time must be >= 0")
	}
	return nil
}

// loadTemplate returns the template text, reading it from a file when the
// value starts with '@'.
func loadTemplate(value string) (string, error) {
	if !strings.HasPrefix(value, "@") {
		return value, nil
	}
	path := strings.TrimPrefix(value, "@")
	if path == "" {
		return "", fmt.Errorf("--template @ requires a file path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template %q: %w", path, err)
	}
	return string(data), nil
}

// enhanceUnknownError adds "did you mean?" suggestions to unknown command/flag errors.
// targetCmd is the command Cobra resolved before the error (may be root itself).
func enhanceUnknownError(err error, root *cobra.Command, targetCmd *cobra.Command) string {
	msg := err.Error()

	if strings.Contains(msg, "unknown command") {
		if unknown := extractQuoted(msg); unknown != "" {
			var names []string
			for _, c := range root.Commands() {
				if c.IsAvailableCommand() || c.Name() == "help" {
					names = append(names, c.Name())
					names = append(names, c.Aliases...)
				}
			}
			if suggestion := suggestCommand(unknown, names); suggestion != "" {
				return fmt.Sprintf("%s\n\nDid you mean %q?", msg, suggestion)
			}
		}
		return msg
	}

	if !strings.Contains(msg, "unknown flag") && !strings.Contains(msg, "unknown shorthand flag") {
		return msg
	}
	unknown := extractFlag(msg)
	if unknown == "" {
		return msg
	}

	seen := make(map[string]bool)
	var flagNames []string
	addFlags := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			for _, name := range []string{"--" + f.Name, shorthandName(f)} {
				if name != "" && !seen[name] {
					seen[name] = true
					flagNames = append(flagNames, name)
				}
			}
		})
	}
	helpCmd := "om --help"
	if targetCmd != nil {
		addFlags(targetCmd.Flags())
		addFlags(targetCmd.InheritedFlags())
		helpCmd = targetCmd.CommandPath() + " --help"
	} else {
		addFlags(root.PersistentFlags())
	}
	if suggestion := suggestFlag(unknown, flagNames); suggestion != "" {
		return fmt.Sprintf("%s\n\nDid you mean %q?\nRun %q to see supported flags.", msg, suggestion, helpCmd)
	}
	return fmt.Sprintf("%s\n\nRun %q to see supported flags.", msg, helpCmd)
}

func shorthandName(f *pflag.Flag) string {
	if f.Shorthand == "" {
		return ""
	}
	return "-" + f.Shorthand
}

// extractQuoted extracts the first double-quoted substring from s.
func extractQuoted(s string) string {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return ""
	}
	return s[start+1 : start+1+end]
}

// extractFlag extracts a flag name (e.g., "--foo" or "-f") from an error message.
func extractFlag(s string) string {
	idx := strings.Index(s, "--")
	if idx < 0 {
		// "unknown shorthand flag: 'a' in -a"
		idx = strings.LastIndex(s, " -")
		if idx < 0 {
			return ""
		}
		idx++
	}
	rest := s[idx:]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		rest = rest[:end]
	}
	rest = strings.TrimRight(rest, ".,;:!?\"'")
	if len(rest) < 2 {
		return ""
	}
	return rest
}
