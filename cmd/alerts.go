package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/analytics"
	"github.com/xkilldash9x/aegiscore/internal/api"
	"github.com/xkilldash9x/aegiscore/internal/config"
	"github.com/xkilldash9x/aegiscore/internal/observability"
	"github.com/xkilldash9x/aegiscore/internal/reporting"
	"github.com/xkilldash9x/aegiscore/internal/service"
)

// newAlertsCmd creates the `alerts` command group.
func newAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and act on stored alerts",
	}
	cmd.AddCommand(newAlertsListCmd())
	cmd.AddCommand(newAlertsResolveCmd())
	cmd.AddCommand(newAlertsBlockCmd())
	cmd.AddCommand(newAlertsAggregateCmd())
	cmd.AddCommand(newAlertsSummaryCmd())
	cmd.AddCommand(newAlertsExportCmd())
	return cmd
}

// withComponents loads config, wires the core and runs fn against it.
func withComponents(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Interface, core *service.Components) error) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	core, err := componentFactory.Create(ctx, cfg, observability.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer core.Shutdown()
	return fn(ctx, cfg, core)
}

func newAlertsListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, _ config.Interface, core *service.Components) error {
				res := core.Store.Query(ctx, limit, schemas.ParseStatusFilter(status))
				if !res.Available() {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning: no alert store is available")
				}
				return printJSON(cmd.OutOrStdout(), res.Alerts)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "all", "filter by status: all, active or resolved")
	cmd.Flags().IntVar(&limit, "limit", api.DefaultWindow, "maximum number of alerts (0 lists everything)")
	return cmd
}

func newAlertsResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark an alert as resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, _ config.Interface, core *service.Components) error {
				rec, err := core.Incidents.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func newAlertsBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <id>",
		Short: "Request a block of an alert's source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, _ config.Interface, core *service.Components) error {
				res, err := core.Incidents.Block(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newAlertsAggregateCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Group alerts by source and attack type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, _ config.Interface, core *service.Components) error {
				res := core.Store.Query(ctx, limit, schemas.FilterAll)
				return printJSON(cmd.OutOrStdout(), analytics.Aggregate(res.Alerts))
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", api.DefaultWindow, "number of recent alerts to aggregate (0 uses everything)")
	return cmd
}

func newAlertsSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the dashboard summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, _ config.Interface, core *service.Components) error {
				res := core.Store.Query(ctx, api.DefaultWindow, schemas.FilterAll)
				return printJSON(cmd.OutOrStdout(), analytics.Summarize(res.Alerts))
			})
		},
	}
}

func newAlertsExportCmd() *cobra.Command {
	var format, output, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export alerts as SARIF or JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, _ config.Interface, core *service.Components) error {
				logger := observability.GetLogger()
				reporter, err := reporting.New(format, output, Version, cmd.OutOrStdout(), logger)
				if err != nil {
					return err
				}
				res := core.Store.Query(ctx, limit, schemas.ParseStatusFilter(status))
				if err := reporter.Write(res.Alerts); err != nil {
					_ = reporter.Close()
					return fmt.Errorf("failed to write report: %w", err)
				}
				return reporter.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", reporting.FormatSARIF, "output format: sarif or jsonl")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&status, "status", "active", "filter by status: all, active or resolved")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of alerts (0 exports everything)")
	return cmd
}
