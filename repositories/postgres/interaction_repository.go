package postgres

import (
	"context"
	"fmt"

	"github.com/upb/llm-governance/models"
	"github.com/upb/llm-governance/repositories"
	"go.uber.org/zap"
)

// InteractionRepository implements repositories.InteractionRepository
type InteractionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInteractionRepository creates a new interaction repository
func NewInteractionRepository(db *DB, logger *zap.Logger) repositories.InteractionRepository {
	return &InteractionRepository{db: db, logger: logger}
}

// Insert stores a new interaction
func (r *InteractionRepository) Insert(ctx context.Context, it *models.Interaction) error {
	query := `
		INSERT INTO interactions (id, user_id, tenant_id, query, answer, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		it.ID, it.UserID, it.TenantID, it.Query, it.Answer, it.Text, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	r.logger.Debug("interaction stored", zap.String("id", it.ID.String()), zap.String("user_id", it.UserID))
	return nil
}

// Search ranks the user's interactions by text-search relevance to query,
// breaking ties by recency.
func (r *InteractionRepository) Search(ctx context.Context, userID, query string, limit int) ([]string, error) {
	sqlQuery := `
		SELECT text
		FROM interactions
		WHERE user_id = $1
		ORDER BY ts_rank(to_tsvector('simple', text), plainto_tsquery('simple', $2)) DESC,
		         created_at DESC
		LIMIT $3
	`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, sqlQuery, userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search interactions: %w", err)
	}
	defer rows.Close()

	texts := make([]string, 0, limit)
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		texts = append(texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return texts, nil
}

// Trim keeps only the newest keep interactions of the user
func (r *InteractionRepository) Trim(ctx context.Context, userID string, keep int) (int64, error) {
	query := `
		DELETE FROM interactions
		WHERE user_id = $1
		  AND id NOT IN (
			SELECT id FROM interactions
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		  )
	`

	result, err := executorFor(ctx, r.db).ExecContext(ctx, query, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim interactions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
