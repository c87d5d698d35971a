package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

var ErrMissingAPIKey = errors.New("gemini api key not configured")

// KeySource yields the provider API key. settings.Service satisfies it.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// ClientHandle builds a genai client on first use and keeps it while the
// configured key stays the same. The key is read on every call, so a key
// saved through settings takes effect on the next request; the old client is
// closed when that happens. A failed build leaves the handle as it was.
type ClientHandle struct {
	keys    KeySource
	opts    []option.ClientOption
	limiter *rate.Limiter

	mu         sync.RWMutex
	client     *genai.Client
	currentKey string
}

// NewClientHandle takes an optional limiter shared by every call made through
// the handle; nil disables throttling.
func NewClientHandle(keys KeySource, limiter *rate.Limiter, opts ...option.ClientOption) *ClientHandle {
	return &ClientHandle{keys: keys, limiter: limiter, opts: opts}
}

func (h *ClientHandle) Client(ctx context.Context) (*genai.Client, error) {
	key, err := h.keys.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	h.mu.RLock()
	if h.client != nil && h.currentKey == key {
		defer h.mu.RUnlock()
		return h.client, nil
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil && h.currentKey == key {
		return h.client, nil
	}

	opts := append([]option.ClientOption{option.WithAPIKey(key)}, h.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if h.client != nil {
		if err := h.client.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close previous genai client", "error", err)
		}
	}
	h.client = client
	h.currentKey = key
	return client, nil
}

func (h *ClientHandle) wait(ctx context.Context) error {
	if h.limiter == nil {
		return nil
	}
	return h.limiter.Wait(ctx)
}

// NewLimiter builds the shared provider limiter; rps <= 0 means unlimited.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
