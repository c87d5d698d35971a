package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/generative-ai-go/genai"

	"qaforge/internal/failure"
)

const DefaultBatchSize = 32

// Embedder turns text into unit-length vectors.
type Embedder struct {
	handle    *ClientHandle
	model     string
	batchSize int

	mu  sync.Mutex
	dim int
}

func NewEmbedder(handle *ClientHandle, model string, batchSize int) *Embedder {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{handle: handle, model: model, batchSize: batchSize}
}

func (e *Embedder) Model() string {
	return e.model
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	client, err := e.handle.Client(ctx)
	if err != nil {
		return nil, failure.New(failure.ErrEmbedding, "embed", err)
	}
	if err := e.handle.wait(ctx); err != nil {
		return nil, failure.New(failure.ErrEmbedding, "embed", err)
	}

	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	res, err := client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, failure.New(failure.ErrEmbedding, "embed", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, failure.New(failure.ErrEmbedding, "embed", errors.New("empty embedding returned"))
	}

	vec := normalize(res.Embedding.Values)
	e.remember(len(vec))
	return vec, nil
}

// EmbedBatch embeds texts in provider batches and returns one vector per
// input, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	client, err := e.handle.Client(ctx)
	if err != nil {
		return nil, failure.New(failure.ErrEmbedding, "embed batch", err)
	}
	em := client.EmbeddingModel(e.model)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := e.handle.wait(ctx); err != nil {
			return nil, failure.New(failure.ErrEmbedding, "embed batch", err)
		}

		b := em.NewBatch()
		for _, t := range texts[start:end] {
			b.AddContent(genai.Text(t))
		}

		slog.DebugContext(ctx, "embedding batch", "model", e.model, "from", start, "size", end-start)
		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			slog.ErrorContext(ctx, "batch embedding failed", "error", err, "from", start)
			return nil, failure.New(failure.ErrEmbedding, "embed batch", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, failure.New(failure.ErrEmbedding, "embed batch",
				fmt.Errorf("expected %d embeddings, got %d", end-start, len(res.Embeddings)))
		}

		for i, emb := range res.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, failure.New(failure.ErrEmbedding, "embed batch",
					fmt.Errorf("empty embedding at position %d", start+i))
			}
			out = append(out, normalize(emb.Values))
		}
	}

	e.remember(len(out[0]))
	return out, nil
}

// Dimension reports the vector width, probing the provider once if no
// embedding has been produced yet.
func (e *Embedder) Dimension(ctx context.Context) (int, error) {
	e.mu.Lock()
	d := e.dim
	e.mu.Unlock()
	if d > 0 {
		return d, nil
	}

	vec, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}

func (e *Embedder) remember(d int) {
	e.mu.Lock()
	if e.dim == 0 {
		e.dim = d
	}
	e.mu.Unlock()
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}
