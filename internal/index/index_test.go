package index_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"qaforge/internal/failure"
	"qaforge/internal/index"
	"qaforge/internal/text"
)

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, s string) ([]float32, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) Model() string { return "test-model" }

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) EnsureSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBackend) Upsert(ctx context.Context, records []index.Record) error {
	return m.Called(ctx, records).Error(0)
}

func (m *MockBackend) Search(ctx context.Context, vector []float32, k int, filter index.Filter) ([]index.Hit, error) {
	args := m.Called(ctx, vector, k, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]index.Hit), args.Error(1)
}

func (m *MockBackend) Reset(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBackend) Stats(ctx context.Context) (index.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(index.Stats), args.Error(1)
}

func (m *MockBackend) DeleteBySource(ctx context.Context, source string) error {
	return m.Called(ctx, source).Error(0)
}

func (m *MockBackend) Replace(ctx context.Context, sources []string, records []index.Record) error {
	return m.Called(ctx, sources, records).Error(0)
}

func TestIndex_Upsert(t *testing.T) {
	emb := new(MockEmbedder)
	be := new(MockBackend)
	idx := index.New(emb, be)
	ctx := context.Background()

	chunks := []text.Chunk{
		{ID: "chunk_0_aaaa", Text: "one", SourceDocument: "a.md"},
		{ID: "chunk_1_bbbb", Text: "two", SourceDocument: "a.md"},
		{ID: "chunk_0_cccc", Text: "three", SourceDocument: "b.html"},
	}
	emb.On("EmbedBatch", ctx, []string{"one", "two", "three"}).
		Return([][]float32{{1, 0}, {0, 1}, {1, 1}}, nil)
	be.On("Upsert", ctx, mock.MatchedBy(func(recs []index.Record) bool {
		return len(recs) == 3 && recs[2].Chunk.ID == "chunk_0_cccc" && recs[2].Vector[1] == 1 && recs[0].Model == "test-model"
	})).Return(nil)

	res, err := idx.Upsert(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, index.UpsertResult{TotalChunks: 3, TotalDocuments: 2}, res)
	be.AssertExpectations(t)
}

func TestIndex_Upsert_Failures(t *testing.T) {
	ctx := context.Background()
	chunks := []text.Chunk{{ID: "c", Text: "t", SourceDocument: "a.md"}}

	t.Run("Embedding", func(t *testing.T) {
		emb := new(MockEmbedder)
		be := new(MockBackend)
		emb.On("EmbedBatch", ctx, mock.Anything).Return(nil, failure.New(failure.ErrEmbedding, "embed batch", errors.New("boom")))

		_, err := index.New(emb, be).Upsert(ctx, chunks)
		assert.True(t, errors.Is(err, failure.ErrEmbedding))
		be.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("Backend", func(t *testing.T) {
		emb := new(MockEmbedder)
		be := new(MockBackend)
		emb.On("EmbedBatch", ctx, mock.Anything).Return([][]float32{{1}}, nil)
		be.On("Upsert", ctx, mock.Anything).Return(errors.New("connection refused"))

		_, err := index.New(emb, be).Upsert(ctx, chunks)
		assert.True(t, errors.Is(err, failure.ErrIndex))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("PlainEmbedderError", func(t *testing.T) {
		emb := new(MockEmbedder)
		emb.On("EmbedBatch", ctx, mock.Anything).Return(nil, errors.New("provider down"))

		_, err := index.New(emb, new(MockBackend)).Upsert(ctx, chunks)
		assert.True(t, errors.Is(err, failure.ErrEmbedding))
		assert.Contains(t, err.Error(), "provider down")
	})

	t.Run("Empty", func(t *testing.T) {
		res, err := index.New(new(MockEmbedder), new(MockBackend)).Upsert(ctx, nil)
		assert.NoError(t, err)
		assert.Zero(t, res.TotalChunks)
	})
}

func TestIndex_Query(t *testing.T) {
	emb := new(MockEmbedder)
	be := new(MockBackend)
	idx := index.New(emb, be)
	ctx := context.Background()
	filter := index.Filter{index.FieldFileType: "md"}

	emb.On("Embed", ctx, "discount code").Return([]float32{1, 0}, nil)
	be.On("Search", ctx, []float32{1, 0}, 3, filter).Return([]index.Hit{
		{Chunk: text.Chunk{ID: "b", Text: "far", SourceDocument: "b.md"}, Distance: 1.3},
		{Chunk: text.Chunk{ID: "a", Text: "near", SourceDocument: "a.md", FileType: "md"}, Distance: 0.2},
		{Chunk: text.Chunk{ID: "c", Text: "mid", SourceDocument: "c.md"}, Distance: 0.7},
	}, nil)

	matches, err := idx.Query(ctx, "discount code", 3, filter)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "near", matches[0].Text)
	assert.InDelta(t, 0.8, matches[0].Score, 1e-9)
	assert.Equal(t, "a.md", matches[0].SourceDocument)
	assert.Equal(t, "md", matches[0].Metadata["file_type"])
	assert.InDelta(t, 0.3, matches[1].Score, 1e-9)
	// Negative scores are kept as-is.
	assert.InDelta(t, -0.3, matches[2].Score, 1e-9)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestIndex_Query_EmbeddingFailure(t *testing.T) {
	emb := new(MockEmbedder)
	be := new(MockBackend)
	ctx := context.Background()
	emb.On("Embed", ctx, "discount").Return(nil, errors.New("quota exceeded"))

	_, err := index.New(emb, be).Query(ctx, "discount", 3, nil)
	assert.True(t, errors.Is(err, failure.ErrEmbedding))
	be.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIndex_Replace(t *testing.T) {
	ctx := context.Background()
	chunks := []text.Chunk{{ID: "chunk_0_aaaa", Text: "one", SourceDocument: "a.md"}}
	sources := []string{"a.md"}

	t.Run("EmbedsBeforeWriting", func(t *testing.T) {
		emb := new(MockEmbedder)
		be := new(MockBackend)
		emb.On("EmbedBatch", ctx, []string{"one"}).Return([][]float32{{1, 0}}, nil)
		be.On("Replace", ctx, sources, mock.MatchedBy(func(recs []index.Record) bool {
			return len(recs) == 1 && recs[0].Chunk.ID == "chunk_0_aaaa" && recs[0].Model == "test-model"
		})).Return(nil)

		res, err := index.New(emb, be).Replace(ctx, sources, chunks)
		require.NoError(t, err)
		assert.Equal(t, index.UpsertResult{TotalChunks: 1, TotalDocuments: 1}, res)
		be.AssertExpectations(t)
	})

	t.Run("EmbeddingFailureLeavesBackendAlone", func(t *testing.T) {
		emb := new(MockEmbedder)
		be := new(MockBackend)
		emb.On("EmbedBatch", ctx, mock.Anything).Return(nil, errors.New("provider down"))

		_, err := index.New(emb, be).Replace(ctx, sources, chunks)
		assert.True(t, errors.Is(err, failure.ErrEmbedding))
		be.AssertNotCalled(t, "Replace", mock.Anything, mock.Anything, mock.Anything)
		be.AssertNotCalled(t, "DeleteBySource", mock.Anything, mock.Anything)
	})

	t.Run("BackendFailure", func(t *testing.T) {
		emb := new(MockEmbedder)
		be := new(MockBackend)
		emb.On("EmbedBatch", ctx, mock.Anything).Return([][]float32{{1}}, nil)
		be.On("Replace", ctx, sources, mock.Anything).Return(errors.New("disk full"))

		_, err := index.New(emb, be).Replace(ctx, sources, chunks)
		assert.True(t, errors.Is(err, failure.ErrIndex))
	})
}

func TestIndex_Query_Empty(t *testing.T) {
	emb := new(MockEmbedder)
	be := new(MockBackend)
	ctx := context.Background()

	emb.On("Embed", ctx, "anything").Return([]float32{1}, nil)
	be.On("Search", ctx, []float32{1}, 5, index.Filter(nil)).Return(nil, nil)

	matches, err := index.New(emb, be).Query(ctx, "anything", 5, nil)
	assert.NoError(t, err)
	assert.Empty(t, matches)
}

func TestIndex_Query_InvalidK(t *testing.T) {
	_, err := index.New(new(MockEmbedder), new(MockBackend)).Query(context.Background(), "q", 0, nil)
	assert.True(t, errors.Is(err, failure.ErrValidation))
}

func TestIndex_StatsAndClear(t *testing.T) {
	be := new(MockBackend)
	idx := index.New(new(MockEmbedder), be)
	ctx := context.Background()

	be.On("Stats", ctx).Return(index.Stats{Collection: "kb", TotalChunks: 4, Documents: []string{"z.md", "a.md"}}, nil).Once()
	be.On("Reset", ctx).Return(nil)
	be.On("Stats", ctx).Return(index.Stats{Collection: "kb"}, nil).Once()

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "z.md"}, st.Documents)
	assert.Equal(t, 2, st.TotalDocuments)

	require.NoError(t, idx.Clear(ctx))

	st, err = idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalChunks)
	assert.Equal(t, []string{}, st.Documents)
}

func TestIndex_BackendErrorsAreIndexFailures(t *testing.T) {
	be := new(MockBackend)
	idx := index.New(new(MockEmbedder), be)
	ctx := context.Background()

	be.On("Reset", ctx).Return(errors.New("weaviate down"))
	be.On("DeleteBySource", ctx, "a.md").Return(errors.New("weaviate down"))
	be.On("EnsureSchema", ctx).Return(errors.New("weaviate down"))

	assert.True(t, errors.Is(idx.Clear(ctx), failure.ErrIndex))
	assert.True(t, errors.Is(idx.DeleteBySource(ctx, "a.md"), failure.ErrIndex))
	assert.True(t, errors.Is(idx.EnsureSchema(ctx), failure.ErrIndex))
}
