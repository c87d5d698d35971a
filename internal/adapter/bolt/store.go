// Package bolt is a single-file vector backend for local and CLI use.
// Vectors are persisted in bbolt and searched brute force from an in-memory
// copy.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"qaforge/internal/failure"
	"qaforge/internal/index"
	"qaforge/internal/text"
)

var keyMeta = []byte("meta")

type collectionMeta struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

type storedChunk struct {
	Chunk  text.Chunk `json:"c"`
	Vector []float32  `json:"v"`
}

type Store struct {
	db         *bbolt.DB
	collection string
	bucket     []byte
	metaBucket []byte

	mu      sync.RWMutex
	meta    collectionMeta
	vectors map[string]storedChunk
}

func Open(path, collection string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	s := &Store{
		db:         db,
		collection: collection,
		bucket:     []byte(collection),
		metaBucket: []byte(collection + "_meta"),
		vectors:    make(map[string]storedChunk),
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{s.bucket, s.metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.View(func(tx *bbolt.Tx) error {
		if raw := tx.Bucket(s.metaBucket).Get(keyMeta); raw != nil {
			if err := json.Unmarshal(raw, &s.meta); err != nil {
				return err
			}
		}
		return tx.Bucket(s.bucket).ForEach(func(k, v []byte) error {
			var sc storedChunk
			if err := json.Unmarshal(v, &sc); err != nil {
				return nil // skip corrupted entries
			}
			s.vectors[string(k)] = sc
			return nil
		})
	})
}

// Upsert writes all records in one transaction. The first write fixes the
// collection's model and dimension; later writes must match both.
func (s *Store) Upsert(ctx context.Context, records []index.Record) error {
	return s.write(nil, records)
}

// Replace drops every chunk of the given sources and writes records in the
// same transaction, so a failed write leaves the old chunks in place.
func (s *Store) Replace(ctx context.Context, sources []string, records []index.Record) error {
	return s.write(sources, records)
}

func (s *Store) write(sources []string, records []index.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := s.idsOf(sources)
	if len(drop) == 0 && len(records) == 0 {
		return nil
	}

	meta := s.meta
	for _, r := range records {
		if meta.Dimension == 0 {
			meta = collectionMeta{Model: r.Model, Dimension: len(r.Vector)}
		}
		if len(r.Vector) != meta.Dimension {
			return failure.New(failure.ErrIndex, "upsert",
				fmt.Errorf("vector dimension mismatch: collection has %d, got %d", meta.Dimension, len(r.Vector)))
		}
		if r.Model != meta.Model {
			return failure.New(failure.ErrIndex, "upsert",
				fmt.Errorf("embedding model mismatch: collection uses %q, got %q", meta.Model, r.Model))
		}
	}

	staged := make(map[string]storedChunk, len(records))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, id := range drop {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		for _, r := range records {
			sc := storedChunk{Chunk: r.Chunk, Vector: r.Vector}
			data, err := json.Marshal(sc)
			if err != nil {
				return err
			}
			k := key(r.Chunk)
			if err := b.Put([]byte(k), data); err != nil {
				return err
			}
			staged[k] = sc
		}
		if len(records) == 0 {
			return nil
		}

		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return tx.Bucket(s.metaBucket).Put(keyMeta, raw)
	})
	if err != nil {
		return err
	}

	for _, id := range drop {
		delete(s.vectors, id)
	}
	for id, sc := range staged {
		s.vectors[id] = sc
	}
	s.meta = meta
	return nil
}

// key scopes a chunk id to its source document, since equal text at the same
// position in two documents yields the same chunk id.
func key(c text.Chunk) string {
	return c.SourceDocument + "\x00" + c.ID
}

// idsOf lists stored keys belonging to any of sources. Callers hold mu.
func (s *Store) idsOf(sources []string) []string {
	if len(sources) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		want[src] = struct{}{}
	}
	var ids []string
	for id, sc := range s.vectors {
		if _, ok := want[sc.Chunk.SourceDocument]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Search scores every stored vector against the query and returns the k
// nearest as cosine distances.
func (s *Store) Search(ctx context.Context, vector []float32, k int, filter index.Filter) ([]index.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 {
		return nil, nil
	}
	if s.meta.Dimension != 0 && len(vector) != s.meta.Dimension {
		return nil, failure.New(failure.ErrIndex, "search",
			fmt.Errorf("query dimension mismatch: expected %d, got %d", s.meta.Dimension, len(vector)))
	}

	hits := make([]index.Hit, 0, len(s.vectors))
	for _, sc := range s.vectors {
		if !matches(sc.Chunk, filter) {
			continue
		}
		hits = append(hits, index.Hit{
			Chunk:    sc.Chunk,
			Distance: 1 - cosineSimilarity(vector, sc.Vector),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Reset drops the collection and recreates it empty.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{s.bucket, s.metaBucket} {
			if err := tx.DeleteBucket(b); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.vectors = make(map[string]storedChunk)
	s.meta = collectionMeta{}
	return nil
}

func (s *Store) Stats(ctx context.Context) (index.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	docs := []string{}
	for _, sc := range s.vectors {
		if _, ok := seen[sc.Chunk.SourceDocument]; ok {
			continue
		}
		seen[sc.Chunk.SourceDocument] = struct{}{}
		docs = append(docs, sc.Chunk.SourceDocument)
	}
	sort.Strings(docs)

	return index.Stats{
		Collection:     s.collection,
		TotalChunks:    len(s.vectors),
		TotalDocuments: len(docs),
		Documents:      docs,
	}, nil
}

func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	return s.write([]string{source}, nil)
}

func matches(c text.Chunk, filter index.Filter) bool {
	for k, v := range filter {
		switch k {
		case index.FieldSourceDocument:
			if c.SourceDocument != v {
				return false
			}
		case index.FieldFileType:
			if c.FileType != v {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
