// Package testcase generates documentation-grounded test cases from the
// knowledge base and keeps the accepted ones.
package testcase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"qaforge/internal/failure"
	"qaforge/internal/index"
	"qaforge/internal/retrieval"
)

const SystemPrompt = `You are an expert QA Test Case Designer.

Your task is to generate comprehensive, documentation-grounded test cases.

CRITICAL RULES:
1. Base ALL test cases ONLY on the provided documentation
2. DO NOT invent, assume, or hallucinate any features not mentioned in docs
3. Each test case MUST reference which document(s) it's based on
4. Include both positive and negative test scenarios
5. Be specific and actionable

OUTPUT FORMAT:
Return test cases as a JSON array with this structure:
[
  {
    "test_id": "TC-001",
    "feature": "Feature name",
    "test_scenario": "Detailed scenario description",
    "test_type": "positive|negative|edge_case",
    "preconditions": "Setup required before test",
    "test_steps": [
      "Step 1: Action to perform",
      "Step 2: Next action",
      "Step 3: Verification"
    ],
    "expected_result": "What should happen",
    "grounded_in": "Exact source document name (e.g., product_specs.md)"
  }
]

Generate clear, testable scenarios that can be automated with Selenium.`

const negativeHint = " Include both positive and negative test scenarios."

// generationTemperature keeps the structured output stable.
const generationTemperature float32 = 0.1

type Pipeline interface {
	Retrieve(ctx context.Context, query string, k int, filter index.Filter) ([]index.Match, error)
	Generate(ctx context.Context, req retrieval.GenerateRequest) (string, error)
}

type Repository interface {
	SaveAll(ctx context.Context, query string, cases []TestCase) error
	List(ctx context.Context, limit int) ([]Record, error)
	Latest(ctx context.Context, testID string) (*TestCase, error)
	Count(ctx context.Context) (int, error)
}

type Request struct {
	Query           string `json:"query"`
	IncludeNegative bool   `json:"include_negative"`
	// Feature and Markup build the query when Query is empty.
	Feature string `json:"feature,omitempty"`
	Markup  string `json:"html_content,omitempty"`
}

type Dropped struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type Result struct {
	Success    bool       `json:"success"`
	Message    string     `json:"message"`
	TestCases  []TestCase `json:"test_cases"`
	TotalCases int        `json:"total_cases"`
	Sources    []string   `json:"sources"`
	Dropped    []Dropped  `json:"dropped,omitempty"`
}

type Generator struct {
	pipeline Pipeline
	repo     Repository
	k        int
}

func NewGenerator(p Pipeline, repo Repository, k int) *Generator {
	return &Generator{pipeline: p, repo: repo, k: k}
}

// query resolves the text sent to retrieval and the model.
func (r Request) query() string {
	q := strings.TrimSpace(r.Query)
	if q == "" && strings.TrimSpace(r.Feature) != "" {
		q = fmt.Sprintf("Generate comprehensive test cases for the %s feature.", strings.TrimSpace(r.Feature))
		if r.Markup != "" {
			q += "\n\nConsider the following HTML structure:\n" + truncate(r.Markup, 1000)
		}
	}
	if q != "" && r.IncludeNegative {
		q += negativeHint
	}
	return q
}

// Generate always returns a Result. The error is non-nil only when a
// pipeline stage failed; extraction and validation problems are reported in
// the Result.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	res := &Result{TestCases: []TestCase{}, Sources: []string{}}

	query := req.query()
	if query == "" {
		res.Message = "Query is required"
		return res, failure.New(failure.ErrValidation, "generate_test_cases", fmt.Errorf("empty query"))
	}

	matches, err := g.pipeline.Retrieve(ctx, query, g.k, nil)
	if err != nil {
		res.Message = "Error generating test cases: " + failure.Reason(err)
		return res, err
	}
	res.Sources = distinctSources(matches)

	temp := generationTemperature
	reply, err := g.pipeline.Generate(ctx, retrieval.GenerateRequest{
		Query:        query,
		Context:      retrieval.FormatContext(matches),
		SystemPrompt: SystemPrompt,
		Temperature:  &temp,
	})
	if err != nil {
		res.Message = "Error generating test cases: " + failure.Reason(err)
		return res, err
	}

	items, err := extractJSON(reply)
	if err != nil {
		slog.WarnContext(ctx, "could not extract test cases from reply", "error", err, "reply", truncate(reply, 500))
		res.Message = "Failed to parse test cases from LLM response"
		return res, nil
	}

	grounding := inferGrounding(matches)
	for i, raw := range items {
		tc, err := normalize(raw, i, grounding)
		if err != nil {
			slog.WarnContext(ctx, "skipping invalid test case", "index", i, "reason", err.Error())
			res.Dropped = append(res.Dropped, Dropped{Index: i, Reason: err.Error()})
			continue
		}
		res.TestCases = append(res.TestCases, *tc)
	}

	res.TotalCases = len(res.TestCases)
	if res.TotalCases == 0 {
		res.Message = "No valid test cases generated"
		return res, nil
	}

	if g.repo != nil {
		if err := g.repo.SaveAll(ctx, query, res.TestCases); err != nil {
			slog.ErrorContext(ctx, "failed to persist test cases", "error", err)
		}
	}

	res.Success = true
	res.Message = fmt.Sprintf("Generated %d test cases", res.TotalCases)
	slog.InfoContext(ctx, "test cases generated", "count", res.TotalCases, "dropped", len(res.Dropped))
	return res, nil
}

func (g *Generator) List(ctx context.Context, limit int) ([]Record, error) {
	return g.repo.List(ctx, limit)
}

func (g *Generator) Lookup(ctx context.Context, testID string) (*TestCase, error) {
	return g.repo.Latest(ctx, testID)
}

func distinctSources(matches []index.Match) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, m := range matches {
		if m.SourceDocument != "" && !seen[m.SourceDocument] {
			seen[m.SourceDocument] = true
			out = append(out, m.SourceDocument)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
