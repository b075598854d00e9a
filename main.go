package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/3leaps/bundlefetch/internal/sandbox"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitSandboxed = 3
)

var version = "dev"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	yes        bool
	ephemeral  bool
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return exitCode(root.ExecuteContext(ctx), stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	if errors.Is(err, sandbox.ErrSandboxed) {
		return exitSandboxed
	}
	return exitFailure
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "bundlefetch",
		Short: "Keep the editor extension's engine bundle and pre-release package current",
		Long: `bundlefetch downloads and installs the versioned engine bundle for this
platform, and keeps the editor extension itself on the beta or proposed alpha
channel when the user opted in.

Examples:
  bundlefetch install          Install the latest bundle if it is missing
  bundlefetch check            Compare the published bundle with what is installed
  bundlefetch activate         Run the full activation sequence
  bundlefetch config show      Print the resolved configuration`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("bundlefetch {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default is <config dir>/bundlefetch/config.toml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log_level)")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "accept editor prompts such as Reload and Open Settings")
	flags.BoolVar(&opts.ephemeral, "ephemeral", false, "keep state in memory instead of the state database")

	root.AddCommand(
		newInstallCmd(opts),
		newCheckCmd(opts),
		newListCmd(opts),
		newPrereleaseCmd(opts),
		newActivateCmd(opts),
		newUninstallCmd(opts),
		newConfigCmd(opts),
	)
	return root
}
