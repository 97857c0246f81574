package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/llm-governance/models"
	"github.com/upb/llm-governance/repositories"
	"github.com/upb/llm-governance/services"
	"go.uber.org/zap"
)

// UsageRecorder journals billed provider calls
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec *models.UsageRecord) error
}

// Recorder writes the usage journal and per-period totals to Postgres
type Recorder struct {
	repo   repositories.UsageRepository
	txMgr  repositories.TransactionManager
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a new Recorder
func NewRecorder(repo repositories.UsageRepository, txMgr repositories.TransactionManager, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		txMgr:  txMgr,
		logger: logger,
		now:    time.Now,
	}
}

// RecordUsage adds the call to the daily and monthly totals and the journal in one transaction
func (r *Recorder) RecordUsage(ctx context.Context, rec *models.UsageRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now().UTC()
	}
	if rec.Currency == "" {
		rec.Currency = "USD"
	}

	err := services.WithTransaction(ctx, r.txMgr, func(ctx context.Context) error {
		if err := r.repo.AddPeriodSpend(ctx, rec.TenantID, getPeriodKey(rec.Timestamp, PeriodDaily), rec.Cost, rec.Currency); err != nil {
			return fmt.Errorf("failed to record daily cost: %w", err)
		}
		if err := r.repo.AddPeriodSpend(ctx, rec.TenantID, getPeriodKey(rec.Timestamp, PeriodMonthly), rec.Cost, rec.Currency); err != nil {
			return fmt.Errorf("failed to record monthly cost: %w", err)
		}
		if err := r.repo.Insert(ctx, rec); err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return services.WrapCollaborator("usage journal write failed", err)
	}

	r.logger.Debug("usage recorded",
		zap.String("tenant_id", rec.TenantID),
		zap.String("provider", rec.Provider),
		zap.Float64("cost", rec.Cost))
	return nil
}

// SpendSummary returns the tenant's spend and transaction counts for today and this month
func (r *Recorder) SpendSummary(ctx context.Context, tenantID string) (*models.SpendSummary, error) {
	now := r.now().UTC()
	summary := &models.SpendSummary{TenantID: tenantID}

	var err error
	if summary.DailySpend, err = r.repo.PeriodSpend(ctx, tenantID, getPeriodKey(now, PeriodDaily)); err != nil {
		return nil, fmt.Errorf("failed to get daily spend: %w", err)
	}
	if summary.MonthlySpend, err = r.repo.PeriodSpend(ctx, tenantID, getPeriodKey(now, PeriodMonthly)); err != nil {
		return nil, fmt.Errorf("failed to get monthly spend: %w", err)
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if summary.DailyTransactions, err = r.repo.CountTransactions(ctx, tenantID, startOfDay); err != nil {
		return nil, fmt.Errorf("failed to get daily transactions: %w", err)
	}
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if summary.MonthlyTransactions, err = r.repo.CountTransactions(ctx, tenantID, startOfMonth); err != nil {
		return nil, fmt.Errorf("failed to get monthly transactions: %w", err)
	}

	return summary, nil
}

// TopSpenders returns the tenants with the largest totals for the period
func (r *Recorder) TopSpenders(ctx context.Context, period BudgetPeriod, limit int) ([]models.SpenderInfo, error) {
	return r.repo.TopSpenders(ctx, getPeriodKey(r.now(), period), limit)
}

// CleanupOldData removes totals and journal rows older than olderThan
func (r *Recorder) CleanupOldData(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := r.now().Add(-olderThan).UTC()
	return r.repo.DeleteBefore(ctx, getPeriodKey(cutoff, PeriodMonthly), cutoff)
}

// StartCleanupWorker periodically runs CleanupOldData until ctx is done
func (r *Recorder) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("started usage cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			if _, err := r.CleanupOldData(ctx, retention); err != nil {
				r.logger.Error("failed to cleanup old usage data", zap.Error(err))
			}
		case <-ctx.Done():
			r.logger.Info("stopping usage cleanup worker")
			return
		}
	}
}
