package postgres

import (
	"context"
	"database/sql"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
	"github.com/jmoiron/sqlx"
)

type decisionRepository struct {
	db *sqlx.DB
}

func NewDecisionRepository(db *sqlx.DB) repository.DecisionRepository {
	return &decisionRepository{db: db}
}

// Upsert relies on the UNIQUE (actor_id, target_id) constraint. The CTE
// reads the previous kind from the statement snapshot, before the write.
func (r *decisionRepository) Upsert(ctx context.Context, decision *domain.Decision) (*domain.DecisionKind, error) {
	query := `
		WITH prev AS (
			SELECT kind FROM decisions WHERE actor_id = $1 AND target_id = $2
		)
		INSERT INTO decisions (id, actor_id, target_id, kind, decided_at)
		VALUES ($3, $1, $2, $4, $5)
		ON CONFLICT (actor_id, target_id)
		DO UPDATE SET kind = EXCLUDED.kind, decided_at = EXCLUDED.decided_at
		RETURNING id, (SELECT kind FROM prev)
	`
	var previous sql.NullString
	err := r.db.QueryRowContext(ctx, query,
		decision.ActorID, decision.TargetID, decision.ID, string(decision.Kind), decision.DecidedAt,
	).Scan(&decision.ID, &previous)
	if err != nil {
		return nil, err
	}
	if !previous.Valid {
		return nil, nil
	}
	kind := domain.DecisionKind(previous.String)
	return &kind, nil
}

func (r *decisionRepository) HasPositive(ctx context.Context, actorID, targetID int) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM decisions
			WHERE actor_id = $1 AND target_id = $2 AND kind IN ('like', 'super_like')
		)
	`
	err := r.db.QueryRowContext(ctx, query, actorID, targetID).Scan(&exists)
	return exists, err
}

func (r *decisionRepository) ListTargets(ctx context.Context, actorID int) ([]int, error) {
	var targets []int
	query := `SELECT target_id FROM decisions WHERE actor_id = $1 ORDER BY decided_at DESC`
	err := r.db.SelectContext(ctx, &targets, query, actorID)
	return targets, err
}
