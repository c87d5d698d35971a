package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"qaforge/internal/adapter/gemini"
	"qaforge/internal/index"
	"qaforge/internal/middleware"
	"qaforge/internal/settings"
)

// NoContext stands in for an empty retrieval so the model always learns it
// was given no documentation.
const NoContext = "No relevant documentation found."

type Searcher interface {
	Query(ctx context.Context, text string, k int, filter index.Filter) ([]index.Match, error)
}

type Completer interface {
	Complete(ctx context.Context, req gemini.Completion) (string, error)
}

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// GenerateRequest is one grounded completion. Zero Temperature or MaxTokens
// fall back to the stored settings.
type GenerateRequest struct {
	Query        string
	Context      string
	SystemPrompt string
	Temperature  *float32
	MaxTokens    int
}

type Request struct {
	Query        string
	SystemPrompt string
	K            int
	Temperature  *float32
	Filter       index.Filter
}

type Response struct {
	Response string        `json:"response"`
	Context  string        `json:"context"`
	Matches  []index.Match `json:"matches"`
}

// Service is the stateless retrieve, format and generate pipeline.
type Service struct {
	index    Searcher
	llm      Completer
	settings SettingsProvider
	logger   *QueryLogger
}

func NewService(idx Searcher, llm Completer, set SettingsProvider, l *QueryLogger) *Service {
	return &Service{index: idx, llm: llm, settings: set, logger: l}
}

// Retrieve returns the k best matches; k <= 0 uses the configured top-k.
func (s *Service) Retrieve(ctx context.Context, query string, k int, filter index.Filter) ([]index.Match, error) {
	start := time.Now()
	if k <= 0 {
		k = s.current(ctx).TopK
	}

	matches, err := s.index.Query(ctx, query, k, filter)
	if err != nil {
		slog.ErrorContext(ctx, "retrieval failed", "error", err, "k", k)
		return nil, err
	}

	if s.logger != nil {
		entry := QueryLogEntry{
			Query:         query,
			NumResults:    len(matches),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		}
		if len(matches) > 0 {
			entry.TopScore = matches[0].Score
		}
		s.logger.Log(entry)
	}
	return matches, nil
}

// FormatContext renders matches best first, each attributed to its source
// and score.
func FormatContext(matches []index.Match) string {
	if len(matches) == 0 {
		return NoContext
	}

	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, fmt.Sprintf("=== From %s (relevance: %.2f) ===\n%s\n", m.SourceDocument, m.Score, m.Text))
	}
	return strings.Join(parts, "\n")
}

// UserMessage wraps the context and query with the grounding instruction.
func UserMessage(query, contextBlock string) string {
	return fmt.Sprintf(`Based on the following documentation:

%s

User Request: %s

Please respond based ONLY on the provided documentation. Do not make up or hallucinate any features not mentioned in the documents.`, contextBlock, query)
}

// Generate sends one grounded completion and returns the model text verbatim.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	set := s.current(ctx)

	temp := set.Temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	maxTokens := set.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	return s.llm.Complete(ctx, gemini.Completion{
		Model:       set.ChatModel,
		System:      req.SystemPrompt,
		User:        UserMessage(req.Query, req.Context),
		Temperature: temp,
		MaxTokens:   maxTokens,
	})
}

// Query runs retrieve, format and generate in one call.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	matches, err := s.Retrieve(ctx, req.Query, req.K, req.Filter)
	if err != nil {
		return nil, err
	}
	contextBlock := FormatContext(matches)

	out, err := s.Generate(ctx, GenerateRequest{
		Query:        req.Query,
		Context:      contextBlock,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	if matches == nil {
		matches = []index.Match{}
	}
	return &Response{Response: out, Context: contextBlock, Matches: matches}, nil
}

func (s *Service) current(ctx context.Context) settings.Settings {
	set, err := s.settings.Get(ctx)
	if err != nil || set == nil {
		slog.WarnContext(ctx, "settings unavailable, using defaults", "error", err)
		return settings.Settings{TopK: 5, Temperature: 0.1, MaxTokens: 2000}
	}
	return *set
}
