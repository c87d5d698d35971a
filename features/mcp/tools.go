package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"qaforge/features/stats"
	"qaforge/features/testcase"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

type SearchInput struct {
	Query string `json:"query" jsonschema:"what to look up in the product documentation"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of passages to return (default 5, max 20)"`
}

type SearchResult struct {
	SourceDocument string  `json:"source_document"`
	Score          float64 `json:"score"`
	Text           string  `json:"text"`
}

type SearchOutput struct {
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

type GenerateInput struct {
	Query           string `json:"query" jsonschema:"the feature or behaviour to write test cases for"`
	IncludeNegative *bool  `json:"include_negative,omitempty" jsonschema:"also generate negative scenarios (default true)"`
}

type GenerateOutput struct {
	TestCases []testcase.TestCase `json:"test_cases"`
	Sources   []string            `json:"sources"`
}

type StatsInput struct{}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "search_knowledge_base",
		Description: `Search tool. Returns the documentation passages most similar to the query, ` +
			`with their source document and relevance score. Use this before answering questions about product behaviour.`,
	}, s.handleSearch)

	if s.ports.Generator != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name: "generate_test_cases",
			Description: `Generation tool. Writes structured test cases grounded only in the indexed documentation. ` +
				`Each case cites the documents it was derived from.`,
		}, s.handleGenerate)
	}

	if s.ports.Stats != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "knowledge_base_stats",
			Description: `Discovery tool. Reports which documents are indexed and how many chunks, test cases and scripts exist.`,
		}, s.handleStats)
	}
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return errorResult("query is required"), SearchOutput{Results: []SearchResult{}}, nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	matches, err := s.ports.Search.Search(ctx, input.Query, limit, nil)
	if err != nil {
		slog.ErrorContext(ctx, "mcp search failed", "error", err)
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{Results: make([]SearchResult, len(matches)), Count: len(matches)}
	var b strings.Builder
	if len(matches) == 0 {
		b.WriteString("No relevant documentation found.")
	}
	for i, m := range matches {
		out.Results[i] = SearchResult{SourceDocument: m.SourceDocument, Score: m.Score, Text: m.Text}
		fmt.Fprintf(&b, "Result %d (Score: %.2f):\nSource: %s\nContent:\n%s\n\n", i+1, m.Score, m.SourceDocument, m.Text)
	}
	return textResult(b.String()), out, nil
}

func (s *Server) handleGenerate(ctx context.Context, _ *mcp.CallToolRequest, input GenerateInput) (*mcp.CallToolResult, GenerateOutput, error) {
	includeNegative := true
	if input.IncludeNegative != nil {
		includeNegative = *input.IncludeNegative
	}

	res, err := s.ports.Generator.Generate(ctx, testcase.Request{Query: input.Query, IncludeNegative: includeNegative})
	if err != nil {
		slog.ErrorContext(ctx, "mcp test case generation failed", "error", err)
		msg := err.Error()
		if res != nil && res.Message != "" {
			msg = res.Message
		}
		return errorResult(msg), emptyGenerate(), nil
	}
	if !res.Success {
		return errorResult(res.Message), emptyGenerate(), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (sources: %s)\n\n", res.Message, strings.Join(res.Sources, ", "))
	for _, tc := range res.TestCases {
		fmt.Fprintf(&b, "%s [%s] %s: %s\n", tc.TestID, tc.Type, tc.Feature, tc.Scenario)
		for i, step := range tc.Steps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
		fmt.Fprintf(&b, "  Expected: %s\n  Grounded in: %s\n\n", tc.ExpectedResult, tc.GroundedIn)
	}
	return textResult(b.String()), GenerateOutput{TestCases: res.TestCases, Sources: res.Sources}, nil
}

func (s *Server) handleStats(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, stats.Snapshot, error) {
	snap, err := s.ports.Stats.Collect(ctx)
	if err != nil {
		return nil, stats.Snapshot{}, err
	}
	text := fmt.Sprintf("Collection: %s\nDocuments: %d\nChunks: %d\nTest cases: %d\nScripts: %d\nFailed jobs: %d\nIndexed: %s",
		snap.Collection, snap.Documents, snap.Chunks, snap.TestCases, snap.Scripts, snap.FailedJobs, strings.Join(snap.Sources, ", "))
	return textResult(text), *snap, nil
}

func emptyGenerate() GenerateOutput {
	return GenerateOutput{TestCases: []testcase.TestCase{}, Sources: []string{}}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
