package settings_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"qaforge/internal/settings"
)

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "gemini_api_key", "chat_model", "top_k", "temperature", "max_tokens"}).
			AddRow(1, "key1", "gemini-2.0-flash", 5, 0.1, 2000)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, gemini_api_key, chat_model, top_k, temperature, max_tokens FROM settings WHERE id = 1")).
			WillReturnRows(rows)

		s, err := repo.Get(context.Background())
		assert.NoError(t, err)
		assert.NotNil(t, s)
		assert.Equal(t, "key1", s.GeminiAPIKey)
		assert.Equal(t, 5, s.TopK)
		assert.Equal(t, float32(0.1), s.Temperature)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id")).
			WillReturnError(sqlmock.ErrCancelled)

		s, err := repo.Get(context.Background())
		assert.Error(t, err)
		assert.Nil(t, s)
	})
}

func TestPostgresRepo_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)

	s := &settings.Settings{
		GeminiAPIKey: "k2",
		ChatModel:    "gemini-2.0-flash",
		TopK:         8,
		Temperature:  0.3,
		MaxTokens:    1500,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE settings SET gemini_api_key = $1, chat_model = $2, top_k = $3, temperature = $4, max_tokens = $5, updated_at = NOW() WHERE id = 1")).
		WithArgs(s.GeminiAPIKey, s.ChatModel, s.TopK, s.Temperature, s.MaxTokens).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, repo.Update(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Seed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE settings SET gemini_api_key = COALESCE(NULLIF(gemini_api_key, ''), $1)")).
		WithArgs("env-key", "gemini-2.0-flash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Seed(context.Background(), settings.Settings{GeminiAPIKey: "env-key", ChatModel: "gemini-2.0-flash"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
