package testcase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// SaveAll stores one generation batch atomically.
func (r *PostgresRepo) SaveAll(ctx context.Context, query string, cases []TestCase) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt := `INSERT INTO test_cases (test_id, feature, scenario, test_type, preconditions, steps, expected_result, grounded_in, query)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, tc := range cases {
		steps, err := json.Marshal(tc.Steps)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt,
			tc.TestID, tc.Feature, tc.Scenario, tc.Type, tc.Preconditions, string(steps), tc.ExpectedResult, tc.GroundedIn, query,
		); err != nil {
			return fmt.Errorf("failed to insert %s: %w", tc.TestID, err)
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, query, test_id, feature, scenario, test_type, preconditions, steps, expected_result, grounded_in, created_at
		FROM test_cases ORDER BY created_at DESC, id DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var steps []byte
		tc := &rec.TestCase
		if err := rows.Scan(&rec.ID, &rec.Query, &tc.TestID, &tc.Feature, &tc.Scenario, &tc.Type, &tc.Preconditions, &steps, &tc.ExpectedResult, &tc.GroundedIn, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(steps, &tc.Steps); err != nil {
			return nil, fmt.Errorf("invalid steps for %s: %w", tc.TestID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Latest returns the most recently generated case with testID, or
// sql.ErrNoRows.
func (r *PostgresRepo) Latest(ctx context.Context, testID string) (*TestCase, error) {
	tc := &TestCase{}
	var steps []byte
	query := `SELECT test_id, feature, scenario, test_type, preconditions, steps, expected_result, grounded_in
		FROM test_cases WHERE test_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	err := r.db.QueryRowContext(ctx, query, testID).Scan(&tc.TestID, &tc.Feature, &tc.Scenario, &tc.Type, &tc.Preconditions, &steps, &tc.ExpectedResult, &tc.GroundedIn)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &tc.Steps); err != nil {
		return nil, err
	}
	return tc, nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM test_cases`).Scan(&count)
	return count, err
}
