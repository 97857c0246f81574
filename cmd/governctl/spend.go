package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/internal/observability"
	"github.com/upb/llm-governance/models"
	"github.com/upb/llm-governance/repositories/postgres"
	"github.com/upb/llm-governance/services/budget"
)

// spendSource is the read side of the usage journal
type spendSource interface {
	SpendSummary(ctx context.Context, tenantID string) (*models.SpendSummary, error)
	TopSpenders(ctx context.Context, period budget.BudgetPeriod, limit int) ([]models.SpenderInfo, error)
}

type openFunc func(ctx context.Context) (spendSource, func() error, error)

// openRecorder connects to the configured Postgres usage journal
func openRecorder(ctx context.Context) (spendSource, func() error, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Database.Enabled() {
		return nil, nil, fmt.Errorf("no database configured: set DATABASE_URL or DB_HOST")
	}

	logger, err := observability.NewLogger("warn", "text")
	if err != nil {
		return nil, nil, err
	}
	factory, err := postgres.NewRepositoryFactory(cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	recorder := budget.NewRecorder(factory.NewRepositories().Usage, factory.GetTransactionManager(), logger)
	return recorder, factory.Close, nil
}

func newSpendCmd(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spend",
		Short: "Report spend from the usage journal",
	}
	cmd.AddCommand(newSpendSummaryCmd(open), newTopSpendersCmd(open))
	return cmd
}

func newSpendSummaryCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <tenant>",
		Short: "Show today's and this month's spend for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			s, err := src.SpendSummary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			writeSummary(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func newTopSpendersCmd(open openFunc) *cobra.Command {
	var (
		period string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "List the tenants with the largest spend",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := budget.BudgetPeriod(period)
			if p != budget.PeriodDaily && p != budget.PeriodMonthly {
				return fmt.Errorf("invalid --period %q (use daily or monthly)", period)
			}

			src, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			rows, err := src.TopSpenders(cmd.Context(), p, limit)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatSpenders(rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&period, "period", string(budget.PeriodDaily), "daily or monthly")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of tenants")
	return cmd
}

func writeSummary(w io.Writer, s *models.SpendSummary) {
	fmt.Fprintf(w, "tenant %s\n", s.TenantID)
	fmt.Fprintf(w, "%-8s $%10.6f %6d requests\n", "today", s.DailySpend, s.DailyTransactions)
	fmt.Fprintf(w, "%-8s $%10.6f %6d requests\n", "month", s.MonthlySpend, s.MonthlyTransactions)
}

func formatSpenders(rows []models.SpenderInfo) string {
	if len(rows) == 0 {
		return "No spend recorded.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %14s %8s\n", "TENANT", "TOTAL", "CURRENCY")
	b.WriteString(strings.Repeat("-", 48) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-24s %14.6f %8s\n", r.TenantID, r.TotalCost, defaultStr(r.Currency, "USD"))
	}
	return b.String()
}
