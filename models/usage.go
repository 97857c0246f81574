package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one billed provider call
type UsageRecord struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ExecutionID string    `json:"execution_id" db:"execution_id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Provider    string    `json:"provider" db:"provider"`
	Model       string    `json:"model" db:"model"`
	TokensUsed  int       `json:"tokens_used" db:"tokens_used"`
	Cost        float64   `json:"cost" db:"cost"`
	Currency    string    `json:"currency" db:"currency"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

// SpendSummary aggregates a tenant's spend for the current day and month
type SpendSummary struct {
	TenantID            string  `json:"tenant_id"`
	DailySpend          float64 `json:"daily_spend"`
	MonthlySpend        float64 `json:"monthly_spend"`
	DailyTransactions   int     `json:"daily_transactions"`
	MonthlyTransactions int     `json:"monthly_transactions"`
}

// SpenderInfo is one row of a top-spenders report
type SpenderInfo struct {
	TenantID  string  `json:"tenant_id"`
	TotalCost float64 `json:"total_cost"`
	Currency  string  `json:"currency"`
}

// TableName returns the table name for usage records
func (UsageRecord) TableName() string {
	return "budget_transactions"
}
