package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openmarket/openmarket-cli/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "Manage CLI configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigProfilesCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Short:   "Show effective settings",
		Long:    "Show settings after merging defaults, config.yaml and OPENMARKET_* environment variables.",
		Example: "om config show --json",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"file":      s.File,
					"per_page":  s.PerPage,
					"max_pages": s.MaxPages,
					"thumbnail": map[string]any{
						"capacity":      s.Thumbnail.Capacity,
						"max_dimension": s.Thumbnail.MaxDimension,
						"concurrency":   s.Thumbnail.Concurrency,
					},
					"cache": map[string]any{
						"backend":   s.Cache.Backend,
						"redis_url": s.Cache.RedisURL,
						"ttl":       s.Cache.TTL.String(),
					},
				})
			}

			w := newTabWriterFromCmd(cmd)
			defer func() { _ = w.Flush() }()
			file := s.File
			if file == "" {
				file = "(none, using defaults)"
			}
			_, _ = fmt.Fprintf(w, "file\t%s\n", file)
			_, _ = fmt.Fprintf(w, "per_page\t%d\n", s.PerPage)
			_, _ = fmt.Fprintf(w, "max_pages\t%d\n", s.MaxPages)
			_, _ = fmt.Fprintf(w, "thumbnail.capacity\t%d\n", s.Thumbnail.Capacity)
			_, _ = fmt.Fprintf(w, "thumbnail.max_dimension\t%d\n", s.Thumbnail.MaxDimension)
			_, _ = fmt.Fprintf(w, "thumbnail.concurrency\t%d\n", s.Thumbnail.Concurrency)
			_, _ = fmt.Fprintf(w, "cache.backend\t%s\n", s.Cache.Backend)
			if s.Cache.RedisURL != "" {
				_, _ = fmt.Fprintf(w, "cache.redis_url\t%s\n", s.Cache.RedisURL)
			}
			_, _ = fmt.Fprintf(w, "cache.ttl\t%s\n", s.Cache.TTL)
			return nil
		}),
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show where config.yaml is read from",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			dir := flags.ConfigDir
			if dir == "" {
				dir = config.SettingsDir()
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(dir, "config.yaml"))
			return nil
		}),
	}
}

func newConfigProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage auth profiles",
	}

	cmd.AddCommand(newProfilesListCmd())
	cmd.AddCommand(newProfilesUseCmd())
	cmd.AddCommand(newProfilesShowCmd())
	cmd.AddCommand(newProfilesDeleteCmd())

	return cmd
}

func newProfilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured profiles",
		Example: "om config profiles list",
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			profiles, err := config.ListProfiles()
			if err != nil {
				return err
			}
			current, _ := config.CurrentProfile()

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"current":  current,
					"profiles": profiles,
				})
			}

			if len(profiles) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No profiles configured. Run 'om auth login' to add one.")
				return nil
			}

			w := newTabWriterFromCmd(cmd)
			defer func() { _ = w.Flush() }()
			_, _ = fmt.Fprintln(w, "CURRENT\tPROFILE\tIDENTIFIER\tHOST")
			for _, profile := range profiles {
				marker := ""
				if profile == current {
					marker = "*"
				}
				identifier, host := "-", "-"
				if account, err := config.LoadProfile(profile); err == nil {
					identifier = account.Identifier
					if account.Host != "" {
						host = account.Host
					}
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, profile, identifier, host)
			}

			return nil
		}),
	}
}

func newProfilesUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "use <name>",
		Short:   "Switch active profile",
		Example: "om config profiles use local",
		Args:    cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := args[0]
			account, err := config.LoadProfile(name)
			if err != nil {
				return fmt.Errorf("profile %q not found: %w", name, err)
			}
			if err := config.SetCurrentProfile(name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Current profile: %s (%s)\n", name, account.Identifier)
			return nil
		}),
	}
}

func newProfilesShowCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:     "show",
		Short:   "Show profile details",
		Example: "om config profiles show --name local",
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			if name == "" {
				current, err := config.CurrentProfile()
				if err != nil {
					return err
				}
				name = current
			}

			account, err := config.LoadProfile(name)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"profile":    name,
					"host":       account.Host,
					"identifier": account.Identifier,
					"secret":     maskToken(account.Secret),
				})
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Profile: %s\n", name)
			if account.Host != "" {
				_, _ = fmt.Fprintf(out, "  Host: %s\n", account.Host)
			}
			_, _ = fmt.Fprintf(out, "  Identifier: %s\n", account.Identifier)
			_, _ = fmt.Fprintf(out, "  Secret: %s\n", maskToken(account.Secret))
			return nil
		}),
	}

	cmd.Flags().StringVar(&name, "name", "", "Profile name (defaults to current)")
	flagAlias(cmd.Flags(), "name", "nm")

	return cmd
}

func newProfilesDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a profile",
		Example: "om config profiles delete local --force",
		Args:    cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ok, err := confirmAction(cmd, confirmOptions{
				Prompt:        fmt.Sprintf("Delete profile %q? (y/N): ", name),
				CancelMessage: "Cancelled.",
				Force:         force,
			})
			if err != nil || !ok {
				return err
			}
			if err := config.DeleteProfile(name); err != nil {
				return err
			}
			printAction(cmd, "Deleted", "profile", name, "")
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}
