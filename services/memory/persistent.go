package memory

import (
	"context"
	"time"

	"github.com/upb/llm-governance/models"
	"github.com/upb/llm-governance/repositories"
	"github.com/upb/llm-governance/services"
	"go.uber.org/zap"
)

// PersistentStore is a Store backed by the interactions table. Each write
// trims the user's rows to the newest keep.
type PersistentStore struct {
	repo   repositories.InteractionRepository
	txMgr  repositories.TransactionManager
	keep   int
	logger *zap.Logger
	now    func() time.Time
}

// NewPersistentStore creates a Postgres-backed store
func NewPersistentStore(repo repositories.InteractionRepository, txMgr repositories.TransactionManager, keep int, logger *zap.Logger) *PersistentStore {
	if keep <= 0 {
		keep = DefaultHistory
	}
	return &PersistentStore{
		repo:   repo,
		txMgr:  txMgr,
		keep:   keep,
		logger: logger,
		now:    time.Now,
	}
}

// Retrieve implements Store
func (s *PersistentStore) Retrieve(ctx context.Context, userID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	texts, err := s.repo.Search(ctx, userID, query, limit)
	if err != nil {
		return nil, services.WrapCollaborator("memory retrieve failed", err)
	}
	return texts, nil
}

// Store implements Store
func (s *PersistentStore) Store(ctx context.Context, userID, text string) error {
	return s.AddInteraction(ctx, models.NewInteraction(userID, "", "", "", text, s.now()))
}

// AddInteraction inserts the interaction and trims the user's history in one transaction
func (s *PersistentStore) AddInteraction(ctx context.Context, it *models.Interaction) error {
	err := services.WithTransaction(ctx, s.txMgr, func(ctx context.Context) error {
		if err := s.repo.Insert(ctx, it); err != nil {
			return err
		}
		trimmed, err := s.repo.Trim(ctx, it.UserID, s.keep)
		if err != nil {
			return err
		}
		if trimmed > 0 {
			s.logger.Debug("trimmed interaction history",
				zap.String("user_id", it.UserID),
				zap.Int64("removed", trimmed))
		}
		return nil
	})
	if err != nil {
		return services.WrapCollaborator("memory store failed", err)
	}
	return nil
}
