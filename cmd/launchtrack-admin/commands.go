package main

import (
	"context"
	"fmt"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/application/container"
	"github.com/AtRiskMedia/launchtrack-go/internal/application/startup"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/metrics"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

// withContainer opens the configured database and runs fn against a fully wired container.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *container.Container) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.NewWriterLogger(cmd.ErrOrStderr(), logging.ParseLevel(config.LogLevel))
	db, err := startup.OpenDatabase(ctx, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := container.NewContainer(ctx, db, logger, container.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewWriterLogger(cmd.ErrOrStderr(), logging.ParseLevel(config.LogLevel))
			db, err := startup.OpenDatabase(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema ready (%s)\n", config.DatabaseDriver)
			return nil
		},
	}
}

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one launch status scheduler pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *container.Container) error {
				res, err := c.SchedulerService.Tick(ctx, c.Clock.Now())
				if err != nil {
					return fmt.Errorf("scheduler tick failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "activated=%d completed=%d\n", res.Activated, res.Completed)
				return nil
			})
		},
	}
}

func reattributeCmd() *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "reattribute",
		Short: "Retry identity resolution for every unmatched purchase of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *container.Container) error {
				res, err := c.AttributionService.ReattributeUnmatched(ctx, accountID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checked=%d matched=%d\n", res.Checked, res.Matched)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.MarkFlagRequired("account")
	return cmd
}

func exportCmd() *cobra.Command {
	var accountID, from, to string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write revenue by source as CSV to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *container.Container) error {
				rg, err := parseDates(from, to, c.Clock.Now())
				if err != nil {
					return err
				}
				out, err := c.MetricsService.ExportCSV(ctx, accountID, rg)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default 30 days before --to)")
	cmd.Flags().StringVar(&to, "to", "", "last day inclusive, YYYY-MM-DD (default today)")
	cmd.MarkFlagRequired("account")
	return cmd
}

func matchRateCmd() *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "match-rate",
		Short: "Print the share of purchases tied to a visitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *container.Container) error {
				rate, err := c.AttributionService.MatchRate(ctx, accountID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "matched=%d total=%d rate=%d%%\n", rate.Matched, rate.Total, rate.Rate)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.MarkFlagRequired("account")
	return cmd
}

func tokenCmd() *cobra.Command {
	var accountID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token scoped to an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			token, err := security.GenerateAccountToken(accountID, config.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	cmd.MarkFlagRequired("account")
	return cmd
}

// parseDates turns inclusive calendar days into a half-open range.
func parseDates(from, to string, now time.Time) (metrics.DateRange, error) {
	end := now
	if to != "" {
		day, err := time.Parse(dateLayout, to)
		if err != nil {
			return metrics.DateRange{}, fmt.Errorf("invalid --to %q: %w", to, err)
		}
		end = day.AddDate(0, 0, 1)
	}
	start := end.AddDate(0, 0, -30)
	if from != "" {
		day, err := time.Parse(dateLayout, from)
		if err != nil {
			return metrics.DateRange{}, fmt.Errorf("invalid --from %q: %w", from, err)
		}
		start = day
	}
	rg := metrics.DateRange{Start: start.UTC(), End: end.UTC()}
	return rg, rg.Validate()
}
