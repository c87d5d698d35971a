package settings

import (
	"context"
)

// Settings holds the runtime-tunable generation parameters.
type Settings struct {
	ID           int     `json:"-"`
	GeminiAPIKey string  `json:"gemini_api_key"`
	ChatModel    string  `json:"chat_model"`
	TopK         int     `json:"top_k"`
	Temperature  float32 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo     Repository
	defaults Settings
}

// NewService returns a Service whose Get fills unset fields from defaults,
// normally the values loaded from the environment.
func NewService(repo Repository, defaults Settings) *Service {
	return &Service{repo: repo, defaults: defaults}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	set, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if set.GeminiAPIKey == "" {
		set.GeminiAPIKey = s.defaults.GeminiAPIKey
	}
	if set.ChatModel == "" {
		set.ChatModel = s.defaults.ChatModel
	}
	if set.TopK <= 0 {
		set.TopK = s.defaults.TopK
	}
	if set.Temperature < 0 {
		set.Temperature = s.defaults.Temperature
	}
	if set.MaxTokens <= 0 {
		set.MaxTokens = s.defaults.MaxTokens
	}
	return set, nil
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	return s.repo.Update(ctx, set)
}

// APIKey returns the configured provider key, falling back to the default.
func (s *Service) APIKey(ctx context.Context) (string, error) {
	set, err := s.Get(ctx)
	if err != nil {
		return s.defaults.GeminiAPIKey, nil
	}
	return set.GeminiAPIKey, nil
}
