package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"alert-autoconf/internal/config"
)

// NewApplyCommand creates the apply command (also the root default).
func NewApplyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "apply",
		Short:         "Converge backend triggers and subscriptions owned by the token",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApply(cmd, opts)
		},
	}
}

func runApply(cmd *cobra.Command, opts *RootOptions) error {
	runner, err := opts.newRunner(config.Load, opts.overrides())
	if err != nil {
		return err
	}
	defer runner.Close()

	report, err := runner.Apply(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	report.Each(func(kind, action string, n int) {
		if n > 0 {
			_, _ = fmt.Fprintf(out, "%s %s: %d\n", kind, action, n)
		}
	})
	return nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	var renderURL string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Render every trigger target through the Graphite render API",
		Long: `Render every target of every trigger for the last minute.

Fails when any render answer is not JSON or the request fails.
Ownership token and storage are not needed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader := func(path string, ov config.Overrides) (config.Config, error) {
				cfg, err := config.LoadForValidation(path, ov)
				if err != nil {
					return cfg, err
				}
				if renderURL != "" {
					cfg.Graphite.RenderURL = renderURL
				}
				return cfg, nil
			}
			runner, err := opts.newRunner(loader, opts.overrides())
			if err != nil {
				return err
			}
			defer runner.Close()

			results, err := runner.Validate(cmd.Context())
			out := cmd.OutOrStdout()
			for _, result := range results {
				status := "OK"
				if result.Err != nil {
					status = "ERROR: " + result.Err.Error()
				}
				_, _ = fmt.Fprintf(out, "trigger %q target %d: %s\n", result.Trigger, result.Index, status)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&renderURL, "render-url", "", "Graphite render url (overrides graphite.render_url)")
	return cmd
}

// NewSetDefaultsCommand creates the set-defaults command.
func NewSetDefaultsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set-defaults",
		Short:         "Validate a defaults file and store it for later applies",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.Document
			if path == "" {
				return usagef("set-defaults requires -c/--config with the defaults file")
			}
			ov := opts.overrides()
			ov.Document = ""
			if ov.Token == "" && ov.Cluster == "" {
				// defaults are shared by every token
				ov.Token = "defaults"
			}
			runner, err := opts.newRunner(config.Load, ov)
			if err != nil {
				return err
			}
			defer runner.Close()

			n, err := runner.SetDefaults(cmd.Context(), path)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stored %d default rule(s)\n", n)
			return nil
		},
	}
}
