package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/upb/llm-governance/models"
	"github.com/upb/llm-governance/repositories"
	"go.uber.org/zap"
)

// UsageRepository implements repositories.UsageRepository
type UsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB, logger *zap.Logger) repositories.UsageRepository {
	return &UsageRepository{db: db, logger: logger}
}

// scopeKey namespaces tenant totals inside budget_tracking
func scopeKey(tenantID string) string {
	return "tenant:" + tenantID
}

// Insert records one billed provider call
func (r *UsageRepository) Insert(ctx context.Context, rec *models.UsageRecord) error {
	query := `
		INSERT INTO budget_transactions
		(id, execution_id, scope_key, user_id, provider, model, tokens_used, cost, currency, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		rec.ID, rec.ExecutionID, scopeKey(rec.TenantID), rec.UserID, rec.Provider, rec.Model,
		rec.TokensUsed, rec.Cost, rec.Currency, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// AddPeriodSpend upserts the tenant's running total for periodKey
func (r *UsageRepository) AddPeriodSpend(ctx context.Context, tenantID, periodKey string, cost float64, currency string) error {
	query := `
		INSERT INTO budget_tracking (scope_key, period_key, total_cost, currency, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope_key, period_key)
		DO UPDATE SET
			total_cost = budget_tracking.total_cost + EXCLUDED.total_cost,
			updated_at = EXCLUDED.updated_at
	`

	_, err := executorFor(ctx, r.db).ExecContext(ctx, query, scopeKey(tenantID), periodKey, cost, currency, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert cost: %w", err)
	}
	return nil
}

// PeriodSpend returns the tenant's total for periodKey, zero when absent
func (r *UsageRepository) PeriodSpend(ctx context.Context, tenantID, periodKey string) (float64, error) {
	query := `
		SELECT COALESCE(total_cost, 0)
		FROM budget_tracking
		WHERE scope_key = $1 AND period_key = $2
	`

	var total float64
	err := executorFor(ctx, r.db).QueryRowContext(ctx, query, scopeKey(tenantID), periodKey).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query budget: %w", err)
	}
	return total, nil
}

// CountTransactions counts journal rows since the given time
func (r *UsageRepository) CountTransactions(ctx context.Context, tenantID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM budget_transactions
		WHERE scope_key = $1 AND timestamp >= $2
	`

	var n int
	if err := executorFor(ctx, r.db).QueryRowContext(ctx, query, scopeKey(tenantID), since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// TopSpenders returns the largest tenant totals for periodKey
func (r *UsageRepository) TopSpenders(ctx context.Context, periodKey string, limit int) ([]models.SpenderInfo, error) {
	query := `
		SELECT scope_key, total_cost, currency
		FROM budget_tracking
		WHERE scope_key LIKE 'tenant:%' AND period_key = $1
		ORDER BY total_cost DESC
		LIMIT $2
	`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, periodKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top spenders: %w", err)
	}
	defer rows.Close()

	spenders := make([]models.SpenderInfo, 0)
	for rows.Next() {
		var key string
		var info models.SpenderInfo
		if err := rows.Scan(&key, &info.TotalCost, &info.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan spender info: %w", err)
		}
		info.TenantID = strings.TrimPrefix(key, "tenant:")
		spenders = append(spenders, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return spenders, nil
}

// DeleteBefore removes totals with period keys before periodKey and journal rows before cutoff
func (r *UsageRepository) DeleteBefore(ctx context.Context, periodKey string, cutoff time.Time) (int64, error) {
	exec := executorFor(ctx, r.db)

	result, err := exec.ExecContext(ctx, `DELETE FROM budget_tracking WHERE period_key < $1`, periodKey)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old budget data: %w", err)
	}
	totals, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	result, err = exec.ExecContext(ctx, `DELETE FROM budget_transactions WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old transactions: %w", err)
	}
	txRows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get transaction rows affected: %w", err)
	}

	r.logger.Info("cleaned up old budget data",
		zap.Int64("budget_rows_deleted", totals),
		zap.Int64("transaction_rows_deleted", txRows),
		zap.Time("cutoff_date", cutoff))

	return totals + txRows, nil
}
