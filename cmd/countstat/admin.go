package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func newDropCmd(root *rootOptions) *cobra.Command {
	var (
		property string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "drop-analytics",
		Short: "Delete analytics counts and fill state",
		Long: `Deletes every count row and fill state, or only those of --property.
Dropped stats are refilled from the installation epoch on the next update.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("refusing to drop analytics data without --force")
			}
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, nil, clockwork.NewRealClock())
			if err != nil {
				return err
			}
			defer a.Close()

			if property != "" {
				if err := a.aggregator.DropStat(cmd.Context(), property); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dropped %s\n", property)
				return nil
			}
			if err := a.aggregator.DropAllAnalytics(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Dropped all analytics data")
			return nil
		},
	}
	cmd.Flags().StringVar(&property, "property", "", "Only drop this stat")
	cmd.Flags().BoolVar(&force, "force", false, "Confirm the deletion")
	return cmd
}

func newCheckCmd(root *rootOptions) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "check-analytics",
		Short: "Report stats whose fill state is stale",
		Long: `Prints a monitoring-plugin style status line and exits 0 (ok),
1 (warning) or 2 (critical).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, nil, clockwork.NewRealClock())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.aggregator.CheckFillState(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", int(report.Status), report.Message)

			if verbose {
				states, err := a.aggregator.FillStates(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				for _, fs := range states {
					fmt.Fprintf(w, "%s\t%s\t%s\n", fs.Property, fs.EndTime.UTC().Format(time.RFC3339), fs.State)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			if report.Status != 0 {
				return &exitError{code: int(report.Status)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Also print the fill state of every filled stat")
	return cmd
}

func newInitSchemaCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the analytics tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, nil, clockwork.NewRealClock())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.aggregator.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Analytics schema ready (%s)\n", a.aggregator.Dialect())
			return nil
		},
	}
}
