package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/3leaps/bundlefetch/internal/config"
	"github.com/3leaps/bundlefetch/internal/supervise"
	"github.com/3leaps/bundlefetch/pkg/update"
)

// withApp builds the app for one command and closes it afterwards.
func withApp(opts *globalOptions, fn func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, a)
	}
}

func newInstallCmd(opts *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the latest engine bundle unless it is already present",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app) error {
			res, err := a.installer.Ensure(cmd.Context(), force)
			if err != nil {
				return err
			}
			if res.Message != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), res.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.ExecutablePath)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "reinstall even if the latest bundle is present")
	return cmd
}

func newCheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare the published bundle version with installed bundles",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app) error {
			plan, err := a.installer.Plan(cmd.Context(), false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "latest:    %s\n", update.FormatVersionDisplay(plan.Latest))
			if len(plan.Installed) == 0 {
				fmt.Fprintln(out, "installed: none")
			} else {
				fmt.Fprintf(out, "installed: %s\n", strings.Join(plan.Installed, ", "))
			}
			fmt.Fprintf(out, "status:    %s\n", update.DescribeDecision(plan.Decision))
			return nil
		}),
	}
}

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed bundle versions, newest first",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app) error {
			versions, err := a.resolver.InstalledBundleVersions()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(versions) == 0 {
				fmt.Fprintln(out, "no bundles installed")
				return nil
			}
			layout := a.installer.Layout()
			for _, v := range versions {
				d, err := layout.Describe(v)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%s\n", v, d.ExecutablePath)
			}
			return nil
		}),
	}
}

func newPrereleaseCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prerelease",
		Short: "Run the pre-release channel update once",
		Long: `Run the pre-release channel update once. Failures are logged and do not
change the exit status; a sandboxed run exits with status 3.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app) error {
			if err := a.guard.Check("pre-release update"); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "channel: %s\n", a.resolver.ActiveChannel())
			g := supervise.New(cmd.Context(), a.logger)
			g.GoBestEffort("pre-release update", a.prerelease.Run)
			return g.Wait()
		}),
	}
}

func newActivateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Report activation, ensure the bundle and run the pre-release update",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app) error {
			res, err := a.activator.Activate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bundle:  %s\nchannel: %s\n", res.ExecutablePath, res.Channel)
			return nil
		}),
	}
}

func newUninstallCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Forget the installed pre-release version",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app) error {
			return a.activator.Uninstall(cmd.Context())
		}),
	}
}

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, _, err := loadConfig(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rendered, err := config.Render(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path != "" {
				fmt.Fprintf(out, "# %s\n", path)
			}
			fmt.Fprint(out, rendered)
			return nil
		},
	})
	return cmd
}
