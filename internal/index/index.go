// Package index stores chunk embeddings and answers nearest-neighbour queries
// over them through a pluggable Backend.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"qaforge/internal/failure"
	"qaforge/internal/text"
)

// Filter restricts a query to chunks whose metadata equals every entry.
// Recognised keys are "source_document" and "file_type".
type Filter map[string]string

const (
	FieldSourceDocument = "source_document"
	FieldFileType       = "file_type"
)

type Record struct {
	Chunk  text.Chunk
	Vector []float32
	Model  string
}

// Hit is what a backend returns: a stored chunk and its cosine distance.
type Hit struct {
	Chunk    text.Chunk
	Distance float64
}

type Match struct {
	Text           string         `json:"text"`
	SourceDocument string         `json:"source_document"`
	Metadata       map[string]any `json:"metadata"`
	Score          float64        `json:"score"`
}

type Stats struct {
	Collection     string   `json:"collection"`
	TotalChunks    int      `json:"total_chunks"`
	TotalDocuments int      `json:"total_documents"`
	Documents      []string `json:"documents"`
}

type UpsertResult struct {
	TotalChunks    int `json:"total_chunks"`
	TotalDocuments int `json:"total_documents"`
}

type Backend interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error)
	Reset(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	DeleteBySource(ctx context.Context, source string) error
	// Replace drops every chunk of sources and writes records.
	Replace(ctx context.Context, sources []string, records []Record) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type Index struct {
	embedder Embedder
	backend  Backend
}

func New(embedder Embedder, backend Backend) *Index {
	return &Index{embedder: embedder, backend: backend}
}

// Upsert embeds every chunk and writes them as one backend batch.
func (x *Index) Upsert(ctx context.Context, chunks []text.Chunk) (UpsertResult, error) {
	if len(chunks) == 0 {
		return UpsertResult{}, nil
	}
	records, err := x.embed(ctx, chunks)
	if err != nil {
		return UpsertResult{}, err
	}
	if err := x.backend.Upsert(ctx, records); err != nil {
		return UpsertResult{}, asIndexErr("upsert", err)
	}
	return x.written(ctx, records), nil
}

// Replace embeds chunks before touching the backend, then swaps out every
// stored chunk of sources for them. An embedding failure leaves the index
// unchanged.
func (x *Index) Replace(ctx context.Context, sources []string, chunks []text.Chunk) (UpsertResult, error) {
	records, err := x.embed(ctx, chunks)
	if err != nil {
		return UpsertResult{}, err
	}
	if len(sources) == 0 && len(records) == 0 {
		return UpsertResult{}, nil
	}
	if err := x.backend.Replace(ctx, sources, records); err != nil {
		return UpsertResult{}, asIndexErr("replace", err)
	}
	return x.written(ctx, records), nil
}

func (x *Index) embed(ctx context.Context, chunks []text.Chunk) ([]Record, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, asEmbeddingErr("embed batch", err)
	}
	if len(vectors) != len(chunks) {
		return nil, failure.New(failure.ErrEmbedding, "embed batch",
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	records := make([]Record, len(chunks))
	for i, c := range chunks {
		records[i] = Record{Chunk: c, Vector: vectors[i], Model: x.embedder.Model()}
	}
	return records, nil
}

func (x *Index) written(ctx context.Context, records []Record) UpsertResult {
	docs := make(map[string]struct{})
	for _, r := range records {
		docs[r.Chunk.SourceDocument] = struct{}{}
	}
	slog.InfoContext(ctx, "chunks upserted", "chunks", len(records), "documents", len(docs))
	return UpsertResult{TotalChunks: len(records), TotalDocuments: len(docs)}
}

// Query returns at most k matches ordered by descending score, where
// score = 1 - cosine distance. Scores are not clamped.
func (x *Index) Query(ctx context.Context, query string, k int, filter Filter) ([]Match, error) {
	if k < 1 {
		return nil, failure.New(failure.ErrValidation, "query", fmt.Errorf("k must be at least 1, got %d", k))
	}

	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, asEmbeddingErr("embed query", err)
	}

	hits, err := x.backend.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, asIndexErr("query", err)
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, Match{
			Text:           h.Chunk.Text,
			SourceDocument: h.Chunk.SourceDocument,
			Metadata: map[string]any{
				"chunk_id":        h.Chunk.ID,
				"chunk_index":     h.Chunk.ChunkIndex,
				"total_chunks":    h.Chunk.TotalChunks,
				"file_type":       h.Chunk.FileType,
				"source_document": h.Chunk.SourceDocument,
			},
			Score: 1 - h.Distance,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Clear drops every stored chunk and recreates an empty collection.
func (x *Index) Clear(ctx context.Context) error {
	if err := x.backend.Reset(ctx); err != nil {
		return asIndexErr("clear", err)
	}
	slog.InfoContext(ctx, "collection cleared")
	return nil
}

func (x *Index) Stats(ctx context.Context) (Stats, error) {
	st, err := x.backend.Stats(ctx)
	if err != nil {
		return Stats{}, asIndexErr("stats", err)
	}
	if st.Documents == nil {
		st.Documents = []string{}
	}
	sort.Strings(st.Documents)
	st.TotalDocuments = len(st.Documents)
	return st, nil
}

func (x *Index) DeleteBySource(ctx context.Context, source string) error {
	if err := x.backend.DeleteBySource(ctx, source); err != nil {
		return asIndexErr("delete by source", err)
	}
	return nil
}

func (x *Index) EnsureSchema(ctx context.Context) error {
	if err := x.backend.EnsureSchema(ctx); err != nil {
		return asIndexErr("ensure schema", err)
	}
	return nil
}

func asEmbeddingErr(op string, err error) error {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}
	return failure.New(failure.ErrEmbedding, op, err)
}

func asIndexErr(op string, err error) error {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}
	return failure.New(failure.ErrIndex, op, err)
}
