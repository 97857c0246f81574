package repositories

import (
	"context"
	"time"

	"github.com/upb/llm-governance/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// InteractionRepository persists conversational memory per user
type InteractionRepository interface {
	// Insert stores a new interaction
	Insert(ctx context.Context, it *models.Interaction) error

	// Search returns up to limit interaction texts for the user that match the query terms,
	// newest first. An empty query returns the most recent texts.
	Search(ctx context.Context, userID, query string, limit int) ([]string, error)

	// Trim deletes all but the newest keep interactions of the user
	Trim(ctx context.Context, userID string, keep int) (int64, error)
}

// UsageRepository persists the usage journal and per-period spend totals
type UsageRepository interface {
	// Insert records one billed provider call
	Insert(ctx context.Context, rec *models.UsageRecord) error

	// AddPeriodSpend adds cost to the tenant's total for the period key
	AddPeriodSpend(ctx context.Context, tenantID, periodKey string, cost float64, currency string) error

	// PeriodSpend returns the tenant's total for the period key
	PeriodSpend(ctx context.Context, tenantID, periodKey string) (float64, error)

	// CountTransactions counts journal rows for the tenant since the given time
	CountTransactions(ctx context.Context, tenantID string, since time.Time) (int, error)

	// TopSpenders returns the largest totals for the period key
	TopSpenders(ctx context.Context, periodKey string, limit int) ([]models.SpenderInfo, error)

	// DeleteBefore removes period totals older than periodKey and journal rows older than cutoff
	DeleteBefore(ctx context.Context, periodKey string, cutoff time.Time) (int64, error)
}

// Repositories aggregates all repositories
type Repositories struct {
	Interactions InteractionRepository
	Usage        UsageRepository
}
