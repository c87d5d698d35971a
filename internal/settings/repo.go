package settings

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

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, gemini_api_key, chat_model, top_k, temperature, max_tokens FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.GeminiAPIKey, &s.ChatModel, &s.TopK, &s.Temperature, &s.MaxTokens)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		UPDATE settings
		SET gemini_api_key = $1, chat_model = $2, top_k = $3, temperature = $4, max_tokens = $5, updated_at = NOW()
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query, s.GeminiAPIKey, s.ChatModel, s.TopK, s.Temperature, s.MaxTokens)
	return err
}

// Seed writes env-provided values into the row only where it is still empty.
func (r *PostgresRepo) Seed(ctx context.Context, s Settings) error {
	query := `
		UPDATE settings
		SET gemini_api_key = COALESCE(NULLIF(gemini_api_key, ''), $1),
			chat_model = COALESCE(NULLIF(chat_model, ''), $2)
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query, s.GeminiAPIKey, s.ChatModel)
	return err
}
