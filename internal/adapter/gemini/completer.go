package gemini

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"qaforge/internal/failure"
)

// Completion is one single-turn chat request.
type Completion struct {
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

type Completer struct {
	handle *ClientHandle
	model  string
}

func NewCompleter(handle *ClientHandle, model string) *Completer {
	return &Completer{handle: handle, model: model}
}

// Complete returns the concatenated text parts of the first candidate.
func (c *Completer) Complete(ctx context.Context, req Completion) (string, error) {
	client, err := c.handle.Client(ctx)
	if err != nil {
		return "", failure.New(failure.ErrGeneration, "complete", err)
	}
	if err := c.handle.wait(ctx); err != nil {
		return "", failure.New(failure.ErrGeneration, "complete", err)
	}

	name := req.Model
	if name == "" {
		name = c.model
	}
	model := client.GenerativeModel(name)
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens)) // #nosec G115 -- bounded by settings validation
	}
	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}

	slog.DebugContext(ctx, "requesting completion", "model", name, "prompt_length", len(req.User))
	resp, err := model.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		slog.ErrorContext(ctx, "completion failed", "model", name, "error", err)
		return "", failure.New(failure.ErrGeneration, "complete", err)
	}

	var b strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	if b.Len() == 0 {
		return "", failure.New(failure.ErrGeneration, "complete", errors.New("model returned no text"))
	}
	return b.String(), nil
}
