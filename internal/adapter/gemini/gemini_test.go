package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"qaforge/internal/adapter/gemini"
	"qaforge/internal/failure"
)

type MockKeys struct {
	mock.Mock
}

func (m *MockKeys) APIKey(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type batchRequest struct {
	Requests []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"requests"`
}

// fakeGemini answers the REST endpoints used by the adapter. Each batch
// embedding is [len(text), 1] so order can be checked after normalization.
func fakeGemini(t *testing.T, batchCalls *int32, lastGenerate *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, ":batchEmbedContents"):
			atomic.AddInt32(batchCalls, 1)
			var req batchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			var embs []map[string]any
			for _, rq := range req.Requests {
				var n float32
				if len(rq.Content.Parts) > 0 {
					n = float32(len(rq.Content.Parts[0].Text))
				}
				embs = append(embs, map[string]any{"values": []float32{n, 1}})
			}
			json.NewEncoder(w).Encode(map[string]any{"embeddings": embs})
		case strings.HasSuffix(r.URL.Path, ":embedContent"):
			json.NewEncoder(w).Encode(map[string]any{
				"embedding": map[string]any{"values": []float32{3, 4}},
			})
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			if lastGenerate != nil {
				json.NewDecoder(r.Body).Decode(lastGenerate)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{
						"role":  "model",
						"parts": []map[string]any{{"text": "generated "}, {"text": "answer"}},
					},
					"finishReason": "STOP",
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestEmbedder_Embed(t *testing.T) {
	var calls int32
	ts := fakeGemini(t, &calls, nil)
	defer ts.Close()

	keys := new(MockKeys)
	keys.On("APIKey", mock.Anything).Return("test-key", nil)

	e := gemini.NewEmbedder(gemini.NewClientHandle(keys, nil, option.WithEndpoint(ts.URL)), "text-embedding-004", 2)

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	dim, err := e.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dim)
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	var calls int32
	ts := fakeGemini(t, &calls, nil)
	defer ts.Close()

	keys := new(MockKeys)
	keys.On("APIKey", mock.Anything).Return("test-key", nil)

	e := gemini.NewEmbedder(gemini.NewClientHandle(keys, nil, option.WithEndpoint(ts.URL)), "text-embedding-004", 2)

	texts := []string{"a", "abc", "", "abcdefg", "ab"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	for i, text := range texts {
		n := float64(len(text))
		norm := math.Sqrt(n*n + 1)
		assert.InDelta(t, n/norm, vecs[i][0], 1e-6, "vector %d out of order", i)

		var sq float64
		for _, x := range vecs[i] {
			sq += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, sq, 1e-5)
	}

}

func TestEmbedder_EmbedBatch_Empty(t *testing.T) {
	e := gemini.NewEmbedder(gemini.NewClientHandle(new(MockKeys), nil), "m", 0)

	vecs, err := e.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedder_ProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"quota exhausted","status":"INVALID_ARGUMENT"}}`))
	}))
	defer ts.Close()

	keys := new(MockKeys)
	keys.On("APIKey", mock.Anything).Return("test-key", nil)
	e := gemini.NewEmbedder(gemini.NewClientHandle(keys, nil, option.WithEndpoint(ts.URL)), "m", 4)

	_, err := e.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrEmbedding))
}

func TestClientHandle_MissingKeyDoesNotPoison(t *testing.T) {
	var calls int32
	ts := fakeGemini(t, &calls, nil)
	defer ts.Close()

	keys := new(MockKeys)
	keys.On("APIKey", mock.Anything).Return("", nil).Once()
	keys.On("APIKey", mock.Anything).Return("late-key", nil)

	e := gemini.NewEmbedder(gemini.NewClientHandle(keys, nil, option.WithEndpoint(ts.URL)), "m", 4)
	ctx := context.Background()

	vec, err := e.Embed(ctx, "hello")
	assert.Nil(t, vec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gemini.ErrMissingAPIKey))
	assert.True(t, errors.Is(err, failure.ErrEmbedding))

	vec, err = e.Embed(ctx, "hello")
	assert.NoError(t, err)
	assert.Len(t, vec, 2)
}

func TestClientHandle_RebuildsOnKeyChange(t *testing.T) {
	keys := new(MockKeys)
	keys.On("APIKey", mock.Anything).Return("key-a", nil).Twice()
	keys.On("APIKey", mock.Anything).Return("key-b", nil)

	h := gemini.NewClientHandle(keys, nil, option.WithEndpoint("http://127.0.0.1:1"))
	ctx := context.Background()

	first, err := h.Client(ctx)
	require.NoError(t, err)
	again, err := h.Client(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)

	rotated, err := h.Client(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, rotated)

	stable, err := h.Client(ctx)
	require.NoError(t, err)
	assert.Same(t, rotated, stable)
}

func TestCompleter_Complete(t *testing.T) {
	var calls int32
	var body map[string]any
	ts := fakeGemini(t, &calls, &body)
	defer ts.Close()

	keys := new(MockKeys)
	keys.On("APIKey", mock.Anything).Return("test-key", nil)

	c := gemini.NewCompleter(gemini.NewClientHandle(keys, gemini.NewLimiter(100, 1), option.WithEndpoint(ts.URL)), "gemini-2.0-flash")

	out, err := c.Complete(context.Background(), gemini.Completion{
		System:      "You are a QA engineer.",
		User:        "Write tests",
		Temperature: 0.1,
		MaxTokens:   2000,
	})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", out)

	require.NotNil(t, body)
	assert.Contains(t, body, "systemInstruction")
	cfg, ok := body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.1, cfg["temperature"], 1e-6)
	assert.EqualValues(t, 2000, cfg["maxOutputTokens"])
}

func TestCompleter_MissingKey(t *testing.T) {
	keys := new(MockKeys)
	keys.On("APIKey", mock.Anything).Return("", nil)

	c := gemini.NewCompleter(gemini.NewClientHandle(keys, nil), "gemini-2.0-flash")

	_, err := c.Complete(context.Background(), gemini.Completion{User: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrGeneration))
	assert.Contains(t, err.Error(), "gemini api key not configured")
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, gemini.NewLimiter(0, 5))
	l := gemini.NewLimiter(2, 0)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}
