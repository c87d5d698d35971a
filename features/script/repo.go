package script

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Upsert records the script, replacing any earlier one with the same filename.
func (r *PostgresRepo) Upsert(ctx context.Context, s *Script) error {
	query := `INSERT INTO scripts (test_id, filename, content, description, grounded_in, strategy)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (filename) DO UPDATE SET
			test_id = EXCLUDED.test_id,
			content = EXCLUDED.content,
			description = EXCLUDED.description,
			grounded_in = EXCLUDED.grounded_in,
			strategy = EXCLUDED.strategy,
			updated_at = NOW()
		RETURNING updated_at`
	return r.db.QueryRowContext(ctx, query, s.TestID, s.Filename, s.Content, s.Description, s.GroundedIn, s.Strategy).Scan(&s.UpdatedAt)
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scripts`).Scan(&count)
	return count, err
}
