// Package stats reports counts across the knowledge base and the generated
// artifacts.
package stats

import (
	"context"
	"fmt"

	"qaforge/internal/index"
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type KnowledgeBase interface {
	Stats(ctx context.Context) (index.Stats, error)
}

type Snapshot struct {
	Collection string   `json:"collection"`
	Documents  int      `json:"documents"`
	Chunks     int      `json:"chunks"`
	TestCases  int      `json:"test_cases"`
	Scripts    int      `json:"scripts"`
	FailedJobs int      `json:"failed_jobs"`
	Sources    []string `json:"sources"`
}

type Service struct {
	kb         KnowledgeBase
	testCases  Counter
	scripts    Counter
	failedJobs Counter
}

// NewService accepts nil counters; missing counts are reported as zero.
func NewService(kb KnowledgeBase, testCases, scripts, failedJobs Counter) *Service {
	return &Service{kb: kb, testCases: testCases, scripts: scripts, failedJobs: failedJobs}
}

func (s *Service) Collect(ctx context.Context) (*Snapshot, error) {
	kb, err := s.kb.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	snap := &Snapshot{
		Collection: kb.Collection,
		Documents:  kb.TotalDocuments,
		Chunks:     kb.TotalChunks,
		Sources:    kb.Documents,
	}
	if snap.Sources == nil {
		snap.Sources = []string{}
	}

	counts := []struct {
		name string
		c    Counter
		dst  *int
	}{
		{"test cases", s.testCases, &snap.TestCases},
		{"scripts", s.scripts, &snap.Scripts},
		{"failed jobs", s.failedJobs, &snap.FailedJobs},
	}
	for _, item := range counts {
		if item.c == nil {
			continue
		}
		n, err := item.c.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", item.name, err)
		}
		*item.dst = n
	}
	return snap, nil
}
