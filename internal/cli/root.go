package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"alert-autoconf/internal/app"
	"alert-autoconf/internal/buildinfo"
	"alert-autoconf/internal/config"
)

// Exit codes returned by Execute.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Settings string
	Document string
	URL      string
	User     string
	Password string
	Token    string
	Storage  string
	Cluster  string
	LogLevel string

	// runner options injected by tests
	runnerOpts []app.Option
}

// usageError marks bad invocations (flags, arguments, settings) for exit code 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// NewRootCommand creates the alert-autoconf command tree.
// Running the root command without a subcommand applies the document.
func NewRootCommand(runnerOpts ...app.Option) *cobra.Command {
	opts := &RootOptions{runnerOpts: runnerOpts}

	cmd := &cobra.Command{
		Use:           buildinfo.Name,
		Short:         "Reconcile Moira triggers and subscriptions with alert.yaml",
		Version:       buildinfo.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApply(cmd, opts)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Settings, "settings", "", "path to TOML settings file")
	flags.StringVarP(&opts.Document, "config", "c", "", "path to alert.yaml (defaults file for set-defaults)")
	flags.StringVarP(&opts.URL, "url", "u", "", "alerting backend API url")
	flags.StringVarP(&opts.User, "user", "U", "", "backend user name")
	flags.StringVarP(&opts.Password, "password", "p", "", "backend password (or "+config.PasswordEnv+")")
	flags.StringVarP(&opts.Token, "token", "t", "", "ownership token")
	flags.StringVarP(&opts.Storage, "storage", "s", "", "ownership store url (redis://, nats://, sqlite://, memory://)")
	flags.StringVarP(&opts.Cluster, "cluster", "C", "", "cluster name; replaces {cluster} and derives the token")
	flags.StringVarP(&opts.LogLevel, "log-level", "l", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewSetDefaultsCommand(opts))
	return cmd
}

// Execute runs the command tree and maps errors to exit codes.
// Params: context, arguments without program name, output writers, runner options.
// Returns: process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, runnerOpts ...app.Option) int {
	cmd := NewRootCommand(runnerOpts...)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	_, _ = fmt.Fprintln(stderr, "error:", err.Error())
	var usage usageError
	if errors.As(err, &usage) || isCobraUsageError(err) {
		return ExitUsage
	}
	return ExitError
}

// isCobraUsageError detects argument errors cobra returns without the flag hook.
func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "accepts ", "unknown flag", "unknown shorthand flag"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

// overrides maps flags to config overrides.
func (o *RootOptions) overrides() config.Overrides {
	return config.Overrides{
		Document:   o.Document,
		URL:        o.URL,
		User:       o.User,
		Password:   o.Password,
		Token:      o.Token,
		Cluster:    o.Cluster,
		StorageURL: o.Storage,
		LogLevel:   o.LogLevel,
	}
}

// newRunner loads settings with loader and builds runner.
// Settings errors are usage errors.
func (o *RootOptions) newRunner(loader func(string, config.Overrides) (config.Config, error), ov config.Overrides) (*app.Runner, error) {
	cfg, err := loader(o.Settings, ov)
	if err != nil {
		return nil, usageError{err: err}
	}
	return app.NewRunner(cfg, o.runnerOpts...)
}
