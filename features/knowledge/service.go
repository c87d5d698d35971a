// Package knowledge builds and manages the document knowledge base: it
// parses support documents, chunks them and writes them to the vector index.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"qaforge/internal/failure"
	"qaforge/internal/index"
	"qaforge/internal/parser"
	"qaforge/internal/text"
)

type Indexer interface {
	Upsert(ctx context.Context, chunks []text.Chunk) (index.UpsertResult, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (index.Stats, error)
	Replace(ctx context.Context, sources []string, chunks []text.Chunk) (index.UpsertResult, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter index.Filter) ([]index.Match, error)
}

type FileError struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type BuildResult struct {
	Success            bool        `json:"success"`
	Message            string      `json:"message"`
	TotalDocuments     int         `json:"total_documents"`
	TotalChunks        int         `json:"total_chunks"`
	DocumentsProcessed []string    `json:"documents_processed"`
	Failed             []FileError `json:"failed,omitempty"`
}

// Progress is called after each document is chunked.
type Progress func(processed, total int, current string)

type Service struct {
	index     Indexer
	retriever Retriever
	splitter  *text.Splitter
	uploadDir string
	excludes  []string

	// Index writes assume a single writer.
	writeMu sync.Mutex
}

func NewService(idx Indexer, r Retriever, splitter *text.Splitter, uploadDir string, excludes []string) *Service {
	return &Service{index: idx, retriever: r, splitter: splitter, uploadDir: uploadDir, excludes: excludes}
}

// Build ingests everything currently in the upload directory.
func (s *Service) Build(ctx context.Context, clearExisting bool) (*BuildResult, error) {
	files, err := Scan(s.uploadDir, s.excludes)
	if err != nil {
		return nil, fmt.Errorf("failed to scan upload directory: %w", err)
	}
	if len(files) == 0 {
		if clearExisting {
			if err := s.Clear(ctx); err != nil {
				return nil, err
			}
		}
		return &BuildResult{
			Success:            false,
			Message:            "No documents found in upload directory",
			DocumentsProcessed: []string{},
		}, nil
	}
	return s.Ingest(ctx, files, clearExisting, nil)
}

// Ingest parses, chunks and indexes files as one batch. Per-file parse
// failures are reported in the result; embedding and index failures abort.
// Without clearExisting, each ingested document's earlier chunks are swapped
// for the new ones once embedding has succeeded, so edited documents leave no
// stale chunks and a failed build leaves the old ones in place.
func (s *Service) Ingest(ctx context.Context, files []parser.File, clearExisting bool, progress Progress) (*BuildResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if clearExisting {
		if err := s.index.Clear(ctx); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "cleared existing knowledge base")
	}

	batch := parser.ParseAll(files)
	result := &BuildResult{DocumentsProcessed: []string{}}
	for _, r := range batch.Results {
		if !r.Success {
			slog.WarnContext(ctx, "document skipped", "filename", r.Filename, "reason", r.Error())
			result.Failed = append(result.Failed, FileError{Filename: r.Filename, Reason: r.Error()})
		}
	}

	if batch.Successful == 0 {
		result.Message = "Failed to parse any documents"
		return result, nil
	}

	var chunks []text.Chunk
	done := 0
	for _, r := range batch.Results {
		if !r.Success {
			continue
		}
		doc := r.Document
		docChunks := text.ChunkDocument(s.splitter, doc.Filename, string(doc.Format), doc.RawText)
		chunks = append(chunks, docChunks...)
		result.DocumentsProcessed = append(result.DocumentsProcessed, doc.Filename)

		done++
		if progress != nil {
			progress(done, batch.Successful, doc.Filename)
		}
	}

	var up index.UpsertResult
	var err error
	if clearExisting {
		up, err = s.index.Upsert(ctx, chunks)
	} else {
		up, err = s.index.Replace(ctx, result.DocumentsProcessed, chunks)
	}
	if err != nil {
		slog.ErrorContext(ctx, "knowledge base build failed", "error", err, "reason", failure.Reason(err))
		return nil, err
	}

	result.Success = true
	result.Message = "Knowledge base built successfully"
	result.TotalChunks = up.TotalChunks
	result.TotalDocuments = len(result.DocumentsProcessed)

	slog.InfoContext(ctx, "knowledge base built",
		"documents", result.TotalDocuments,
		"chunks", result.TotalChunks,
		"failed", len(result.Failed),
	)
	return result, nil
}

func (s *Service) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.index.Clear(ctx)
}

func (s *Service) Stats(ctx context.Context) (index.Stats, error) {
	return s.index.Stats(ctx)
}

// Search retrieves matches without calling the chat model.
func (s *Service) Search(ctx context.Context, query string, k int, filter index.Filter) ([]index.Match, error) {
	return s.retriever.Retrieve(ctx, query, k, filter)
}
