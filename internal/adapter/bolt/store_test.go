package bolt_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qaforge/internal/adapter/bolt"
	"qaforge/internal/failure"
	"qaforge/internal/index"
	"qaforge/internal/text"
)

func openStore(t *testing.T) (*bolt.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.db")
	s, err := bolt.Open(path, "qa_knowledge_base")
	require.NoError(t, err)
	return s, path
}

func record(id, source string, vec ...float32) index.Record {
	return index.Record{
		Chunk:  text.Chunk{ID: id, Text: "text of " + id, SourceDocument: source, FileType: filepath.Ext(source)[1:]},
		Vector: vec,
		Model:  "text-embedding-004",
	}
}

func TestStore_SearchOrdersByDistance(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []index.Record{
		record("a", "spec.md", 1, 0),
		record("b", "spec.md", 0, 1),
		record("c", "page.html", -1, 0),
	}))

	hits, err := s.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].Chunk.ID)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
	assert.Equal(t, "b", hits[1].Chunk.ID)
	assert.InDelta(t, 1.0, hits[1].Distance, 1e-9)
	assert.Equal(t, "c", hits[2].Chunk.ID)
	assert.InDelta(t, 2.0, hits[2].Distance, 1e-9)

	hits, err = s.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestStore_SearchFilter(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []index.Record{
		record("a", "spec.md", 1, 0),
		record("b", "page.html", 1, 0),
	}))

	hits, err := s.Search(ctx, []float32{1, 0}, 5, index.Filter{index.FieldFileType: "html"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "page.html", hits[0].Chunk.SourceDocument)

	hits, err = s.Search(ctx, []float32{1, 0}, 5, index.Filter{index.FieldSourceDocument: "missing.md"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_EmptySearch(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()

	hits, err := s.Search(context.Background(), []float32{1, 0}, 5, nil)
	assert.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()
	ctx := context.Background()

	recs := []index.Record{record("a", "spec.md", 1, 0), record("b", "spec.md", 0, 1)}
	require.NoError(t, s.Upsert(ctx, recs))
	require.NoError(t, s.Upsert(ctx, recs))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalChunks)
	assert.Equal(t, []string{"spec.md"}, st.Documents)
}

func TestStore_SameChunkIDInTwoDocuments(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []index.Record{
		record("chunk_0_5d41402a", "spec.md", 1, 0),
		record("chunk_0_5d41402a", "copy.md", 1, 0),
	}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalChunks)
	assert.Equal(t, []string{"copy.md", "spec.md"}, st.Documents)

	require.NoError(t, s.DeleteBySource(ctx, "copy.md"))
	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"spec.md"}, st.Documents)
}

func TestStore_RejectsMismatchedEmbeddings(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []index.Record{record("a", "spec.md", 1, 0)}))

	err := s.Upsert(ctx, []index.Record{record("b", "spec.md", 1, 0, 0)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrIndex))

	other := record("c", "spec.md", 1, 0)
	other.Model = "another-model"
	err = s.Upsert(ctx, []index.Record{other})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrIndex))

	_, err = s.Search(ctx, []float32{1, 0, 0}, 1, nil)
	assert.True(t, errors.Is(err, failure.ErrIndex))
}

func TestStore_ResetClearsEverything(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()
	ctx := context.Background()

	var recs []index.Record
	for i := 0; i < 50; i++ {
		recs = append(recs, record(fmt.Sprintf("chunk_%d", i), fmt.Sprintf("doc%d.md", i%5), float32(i), 1))
	}
	require.NoError(t, s.Upsert(ctx, recs))

	require.NoError(t, s.Reset(ctx))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalChunks)
	assert.Equal(t, []string{}, st.Documents)

	// A new model may be used after a reset.
	fresh := record("x", "spec.md", 1, 0, 0)
	fresh.Model = "another-model"
	assert.NoError(t, s.Upsert(ctx, []index.Record{fresh}))
}

func TestStore_DeleteBySource(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []index.Record{
		record("a", "spec.md", 1, 0),
		record("b", "spec.md", 0, 1),
		record("c", "page.html", 1, 1),
	}))

	require.NoError(t, s.DeleteBySource(ctx, "spec.md"))
	require.NoError(t, s.DeleteBySource(ctx, "unknown.md"))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalChunks)
	assert.Equal(t, []string{"page.html"}, st.Documents)
}

func TestStore_Replace(t *testing.T) {
	s, path := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []index.Record{
		record("a", "spec.md", 1, 0),
		record("b", "spec.md", 0, 1),
		record("c", "page.html", 1, 1),
	}))

	require.NoError(t, s.Replace(ctx, []string{"spec.md"}, []index.Record{record("d", "spec.md", 1, 0)}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalChunks)

	hits, err := s.Search(ctx, []float32{1, 0}, 5, index.Filter{index.FieldSourceDocument: "spec.md"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d", hits[0].Chunk.ID)

	// A rejected write keeps the previous chunks.
	bad := record("e", "spec.md", 1, 0, 0)
	err = s.Replace(ctx, []string{"spec.md"}, []index.Record{bad})
	assert.True(t, errors.Is(err, failure.ErrIndex))

	require.NoError(t, s.Close())
	reopened, err := bolt.Open(path, "qa_knowledge_base")
	require.NoError(t, err)
	defer reopened.Close()

	st, err = reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalChunks)
	assert.Equal(t, []string{"page.html", "spec.md"}, st.Documents)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	s, path := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []index.Record{record("a", "spec.md", 1, 0)}))
	require.NoError(t, s.Close())

	reopened, err := bolt.Open(path, "qa_knowledge_base")
	require.NoError(t, err)
	defer reopened.Close()

	hits, err := reopened.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "text of a", hits[0].Chunk.Text)

	err = reopened.Upsert(ctx, []index.Record{record("b", "spec.md", 1, 0, 0)})
	assert.True(t, errors.Is(err, failure.ErrIndex))
}
