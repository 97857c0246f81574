package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-governance/models"
	"github.com/upb/llm-governance/repositories/postgres"
	"github.com/upb/llm-governance/services"
	"go.uber.org/zap"
)

func newTestRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	logger := zap.NewNop()
	db := postgres.Wrap(sqlDB, logger)
	r := NewRecorder(postgres.NewUsageRepository(db, logger), postgres.NewTransactionManager(db, logger), logger)
	r.now = func() time.Time { return time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC) }
	return r, mock
}

func TestRecorder_RecordUsage(t *testing.T) {
	r, mock := newTestRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO budget_tracking").
		WithArgs("tenant:acme", "2024-01-15", 0.00014, "USD", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO budget_tracking").
		WithArgs("tenant:acme", "2024-01", 0.00014, "USD", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO budget_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec := &models.UsageRecord{
		ExecutionID: "exec-1",
		TenantID:    "acme",
		UserID:      "alice",
		Provider:    "gemini",
		Model:       "gemma-2-9b-it",
		TokensUsed:  80,
		Cost:        0.00014,
	}
	require.NoError(t, r.RecordUsage(context.Background(), rec))

	assert.Equal(t, "USD", rec.Currency)
	assert.False(t, rec.Timestamp.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_RecordUsageRollsBack(t *testing.T) {
	r, mock := newTestRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO budget_tracking").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := r.RecordUsage(context.Background(), &models.UsageRecord{TenantID: "acme", Cost: 1})

	require.Error(t, err)
	assert.True(t, services.IsCollaboratorError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_SpendSummary(t *testing.T) {
	r, mock := newTestRecorder(t)

	mock.ExpectQuery("SELECT COALESCE").WithArgs("tenant:acme", "2024-01-15").
		WillReturnRows(sqlmock.NewRows([]string{"total_cost"}).AddRow(1.5))
	mock.ExpectQuery("SELECT COALESCE").WithArgs("tenant:acme", "2024-01").
		WillReturnRows(sqlmock.NewRows([]string{"total_cost"}).AddRow(9.25))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(40))

	s, err := r.SpendSummary(context.Background(), "acme")

	require.NoError(t, err)
	assert.Equal(t, 1.5, s.DailySpend)
	assert.Equal(t, 9.25, s.MonthlySpend)
	assert.Equal(t, 3, s.DailyTransactions)
	assert.Equal(t, 40, s.MonthlyTransactions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_CleanupOldData(t *testing.T) {
	r, mock := newTestRecorder(t)

	mock.ExpectExec("DELETE FROM budget_tracking").WithArgs("2023-12").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM budget_transactions").
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := r.CleanupOldData(context.Background(), 30*24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
