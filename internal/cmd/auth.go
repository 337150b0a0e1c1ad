package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openmarket/openmarket-cli/internal/config"
	"github.com/openmarket/openmarket-cli/internal/iocontext"
	"github.com/openmarket/openmarket-cli/internal/request"
)

// newAuthCmd returns the auth command with subcommands
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "auth",
		Aliases: []string{"au"},
		Short:   "Manage vendor credentials",
		Long:    "Store the OpenMarket vendor identifier and secret in your OS keychain.",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		identifier  string
		secret      string
		secretStdin bool
		profile     string
		envFile     string
		verify      bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save vendor credentials",
		Long: strings.TrimSpace(`
Save OpenMarket vendor credentials securely to your OS keychain.

You'll need:
- Identifier: the vendor identifier sent in the "identifier" header
- Secret: the vendor secret used for product writes and deletion

Optional:
- Host: API host, defaults to ` + request.DefaultHost + `
- Profile: save several vendors and switch between them
`),
		Example: strings.TrimSpace(`
  # Save credentials for the default profile
  om auth login --identifier 6a8b... --secret s3cret

  # Read the secret from stdin
  printf '%s' "$SECRET" | om auth login --identifier 6a8b... --secret-stdin

  # Save a second vendor against a local server
  om auth login --identifier abc --secret xyz --host http://localhost:8080 --profile local

  # Load OPENMARKET_* values from a .env file
  om auth login --env-file .env
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if secretStdin {
				if secret != "" {
					return fmt.Errorf("--secret and --secret-stdin cannot be used together")
				}
				data, err := readAllLimited(iocontext.GetIO(cmd.Context()).In, 4096)
				if err != nil {
					return fmt.Errorf("failed to read secret from stdin: %w", err)
				}
				secret = strings.TrimSpace(string(data))
			}

			account := config.Account{
				Host:       strings.TrimSpace(flags.Host),
				Identifier: strings.TrimSpace(identifier),
				Secret:     secret,
			}
			if envFile != "" {
				fromFile, err := config.ReadEnvFile(envFile)
				if err != nil {
					return err
				}
				if account.Identifier == "" {
					account.Identifier = fromFile.Identifier
				}
				if account.Secret == "" {
					account.Secret = fromFile.Secret
				}
				if account.Host == "" {
					account.Host = fromFile.Host
				}
			}

			if account.Identifier == "" {
				return fmt.Errorf("--identifier is required")
			}
			if account.Secret == "" {
				return fmt.Errorf("--secret is required")
			}
			if account.Host != "" {
				scheme, bare := config.SplitHost(account.Host)
				if bare == "" || strings.ContainsAny(bare, " /?#") {
					return fmt.Errorf("invalid --host %q", account.Host)
				}
				account.Host = bare
				if scheme == "http" {
					account.Host = "http://" + bare
				}
			}

			if verify {
				cfg := config.ClientConfig{Identifier: account.Identifier, Secret: account.Secret}
				cfg.Scheme, cfg.Host = config.SplitHost(account.Host)
				if cfg.Host == "" {
					cfg.Host = request.DefaultHost
				}
				client := newClientFactory().newClient(cfg)
				if _, err := client.Products().List(cmdContext(cmd), 1, 1); err != nil {
					return fmt.Errorf("could not reach %s: %w", cfg.Host, err)
				}
			}

			if err := config.SaveProfile(profile, account); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"saved":   true,
					"profile": profile,
					"account": account.Redacted(),
				})
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Credentials saved.")
			_, _ = fmt.Fprintf(out, "  Identifier: %s\n", account.Identifier)
			if account.Host != "" {
				_, _ = fmt.Fprintf(out, "  Host: %s\n", account.Host)
			}
			if profile != "" && profile != "default" {
				_, _ = fmt.Fprintf(out, "  Profile: %s\n", profile)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&identifier, "identifier", "", "Vendor identifier")
	cmd.Flags().StringVar(&secret, "secret", "", "Vendor secret")
	cmd.Flags().BoolVar(&secretStdin, "secret-stdin", false, "Read the vendor secret from stdin")
	cmd.Flags().StringVar(&profile, "profile", "default", "Profile name to save credentials under")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load OPENMARKET_IDENTIFIER, OPENMARKET_SECRET and OPENMARKET_HOST from a .env file")
	cmd.Flags().BoolVar(&verify, "verify", false, "List one product before saving to check the host is reachable")
	flagAlias(cmd.Flags(), "identifier", "id")
	flagAlias(cmd.Flags(), "profile", "pf")
	flagAlias(cmd.Flags(), "env-file", "env")

	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active credentials",
		Long:  "Display the credentials the CLI will use. The secret is masked.",
		Example: strings.TrimSpace(`
  om auth status
  om auth status --json
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			usingEnv := strings.TrimSpace(os.Getenv("OPENMARKET_IDENTIFIER")) != "" ||
				strings.TrimSpace(os.Getenv("OPENMARKET_SECRET")) != ""

			account, err := config.LoadAccount()
			if err != nil {
				if errors.Is(err, config.ErrNotConfigured) {
					if isJSON(cmd) {
						return printJSON(cmd, map[string]any{
							"authenticated": false,
							"message":       "Not authenticated. Run 'om auth login' to configure credentials.",
						})
					}
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Not authenticated.")
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Run 'om auth login' to configure credentials.")
					return nil
				}
				return fmt.Errorf("failed to load credentials: %w", err)
			}

			cfg, err := config.ResolveClientConfig(flags.Host)
			if err != nil {
				return err
			}

			source := "keychain"
			var profile string
			if usingEnv {
				source = "env"
			} else if current, err := config.CurrentProfile(); err == nil {
				profile = current
			}

			if isJSON(cmd) {
				payload := map[string]any{
					"authenticated": true,
					"host":          cfg.Scheme + "://" + cfg.Host,
					"identifier":    account.Identifier,
					"secret":        maskToken(account.Secret),
					"source":        source,
				}
				if profile != "" {
					payload["profile"] = profile
				}
				return printJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Authenticated")
			_, _ = fmt.Fprintf(out, "  Host: %s://%s\n", cfg.Scheme, cfg.Host)
			_, _ = fmt.Fprintf(out, "  Identifier: %s\n", account.Identifier)
			_, _ = fmt.Fprintf(out, "  Secret: %s\n", maskToken(account.Secret))
			if profile != "" {
				_, _ = fmt.Fprintf(out, "  Profile: %s\n", profile)
			}
			_, _ = fmt.Fprintf(out, "  Source: %s\n", source)
			return nil
		}),
	}
}

func newAuthLogoutCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:     "logout",
		Short:   "Remove credentials from keychain",
		Example: "om auth logout --profile local",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if profile == "" {
				current, err := config.CurrentProfile()
				if err != nil {
					return err
				}
				profile = current
			}
			if _, err := config.LoadProfile(profile); err != nil {
				if errors.Is(err, config.ErrNotConfigured) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No credentials found.")
					return nil
				}
				return err
			}

			if err := config.DeleteProfile(profile); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}
			printAction(cmd, "Removed", "profile", profile, "")
			return nil
		}),
	}

	cmd.Flags().StringVar(&profile, "profile", "", "Profile name to remove (defaults to current)")
	flagAlias(cmd.Flags(), "profile", "pf")

	return cmd
}

// maskToken masks a secret for display, showing only first and last 4 characters
func maskToken(token string) string {
	if len(token) < 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
