package models

import (
	"time"

	"github.com/google/uuid"
)

// Interaction is one query/answer exchange kept as conversational memory
type Interaction struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Query     string    `json:"query" db:"query"`
	Answer    string    `json:"answer" db:"answer"`
	Text      string    `json:"text" db:"text"` // "Query: ...\nAnswer: ..." with PII redacted
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewInteraction builds an interaction with a fresh ID
func NewInteraction(userID, tenantID, query, answer, text string, now time.Time) *Interaction {
	return &Interaction{
		ID:        uuid.New(),
		UserID:    userID,
		TenantID:  tenantID,
		Query:     query,
		Answer:    answer,
		Text:      text,
		CreatedAt: now.UTC(),
	}
}

// TableName returns the table name for interactions
func (Interaction) TableName() string {
	return "interactions"
}
