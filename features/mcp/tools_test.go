package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"qaforge/features/stats"
	"qaforge/features/testcase"
	"qaforge/internal/failure"
	"qaforge/internal/index"
)

type MockSearcher struct{ mock.Mock }

func (m *MockSearcher) Search(ctx context.Context, query string, k int, filter index.Filter) ([]index.Match, error) {
	args := m.Called(ctx, query, k, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]index.Match), args.Error(1)
}

type MockGenerator struct{ mock.Mock }

func (m *MockGenerator) Generate(ctx context.Context, req testcase.Request) (*testcase.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(*testcase.Result), args.Error(1)
}

type MockStats struct{ mock.Mock }

func (m *MockStats) Collect(ctx context.Context) (*stats.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stats.Snapshot), args.Error(1)
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(Ports{})
	assert.ErrorIs(t, err, ErrMissingSearcher)

	s, err := NewServer(Ports{Search: new(MockSearcher)})
	require.NoError(t, err)
	assert.NotNil(t, s.Handler())
}

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("Returns Matches", func(t *testing.T) {
		search := new(MockSearcher)
		search.On("Search", mock.Anything, "discount codes", 3, index.Filter(nil)).Return([]index.Match{
			{Text: "SAVE15 gives 15% off", SourceDocument: "product_specs.md", Score: 0.91},
		}, nil)
		s, err := NewServer(Ports{Search: search})
		require.NoError(t, err)

		res, out, err := s.handleSearch(ctx, nil, SearchInput{Query: "discount codes", Limit: 3})

		require.NoError(t, err)
		assert.Equal(t, 1, out.Count)
		assert.Equal(t, "product_specs.md", out.Results[0].SourceDocument)
		assert.Contains(t, resultText(t, res), "Result 1 (Score: 0.91)")
	})

	t.Run("Limit Defaults And Caps", func(t *testing.T) {
		search := new(MockSearcher)
		search.On("Search", mock.Anything, "a", defaultSearchLimit, index.Filter(nil)).Return([]index.Match{}, nil)
		search.On("Search", mock.Anything, "b", maxSearchLimit, index.Filter(nil)).Return([]index.Match{}, nil)
		s, _ := NewServer(Ports{Search: search})

		res, _, err := s.handleSearch(ctx, nil, SearchInput{Query: "a"})
		require.NoError(t, err)
		assert.Equal(t, "No relevant documentation found.", resultText(t, res))

		_, _, err = s.handleSearch(ctx, nil, SearchInput{Query: "b", Limit: 500})
		require.NoError(t, err)
		search.AssertExpectations(t)
	})

	t.Run("Empty Query", func(t *testing.T) {
		s, _ := NewServer(Ports{Search: new(MockSearcher)})

		res, _, err := s.handleSearch(ctx, nil, SearchInput{Query: "  "})

		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("Search Failure", func(t *testing.T) {
		search := new(MockSearcher)
		search.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("index unavailable"))
		s, _ := NewServer(Ports{Search: search})

		_, _, err := s.handleSearch(ctx, nil, SearchInput{Query: "x"})
		assert.ErrorContains(t, err, "index unavailable")
	})
}

func TestServer_handleGenerate(t *testing.T) {
	ctx := context.Background()
	cases := []testcase.TestCase{{
		TestID: "TC-001", Feature: "Discount", Scenario: "Valid code", Type: testcase.TypePositive,
		Steps: []string{"Enter SAVE15", "Apply"}, ExpectedResult: "15% off", GroundedIn: "product_specs.md",
	}}

	t.Run("Defaults To Negative Scenarios", func(t *testing.T) {
		gen := new(MockGenerator)
		gen.On("Generate", mock.Anything, testcase.Request{Query: "discounts", IncludeNegative: true}).
			Return(&testcase.Result{Success: true, Message: "Generated 1 test cases", TestCases: cases, Sources: []string{"product_specs.md"}}, nil)
		s, _ := NewServer(Ports{Search: new(MockSearcher), Generator: gen})

		res, out, err := s.handleGenerate(ctx, nil, GenerateInput{Query: "discounts"})

		require.NoError(t, err)
		assert.Len(t, out.TestCases, 1)
		text := resultText(t, res)
		assert.Contains(t, text, "TC-001 [positive] Discount: Valid code")
		assert.Contains(t, text, "  2. Apply")
	})

	t.Run("Respects Flag", func(t *testing.T) {
		gen := new(MockGenerator)
		off := false
		gen.On("Generate", mock.Anything, testcase.Request{Query: "q", IncludeNegative: false}).
			Return(&testcase.Result{Success: false, Message: "No valid test cases generated"}, nil)
		s, _ := NewServer(Ports{Search: new(MockSearcher), Generator: gen})

		res, _, err := s.handleGenerate(ctx, nil, GenerateInput{Query: "q", IncludeNegative: &off})

		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Equal(t, "No valid test cases generated", resultText(t, res))
	})

	t.Run("Pipeline Error", func(t *testing.T) {
		gen := new(MockGenerator)
		gen.On("Generate", mock.Anything, mock.Anything).
			Return(&testcase.Result{Message: "Error generating test cases: embedding failure"}, failure.New(failure.ErrEmbedding, "embed", errors.New("quota")))
		s, _ := NewServer(Ports{Search: new(MockSearcher), Generator: gen})

		res, _, err := s.handleGenerate(ctx, nil, GenerateInput{Query: "q"})

		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "embedding failure")
	})
}

func TestServer_handleStats(t *testing.T) {
	st := new(MockStats)
	st.On("Collect", mock.Anything).Return(&stats.Snapshot{Collection: "qa_knowledge_base", Documents: 2, Chunks: 40, Sources: []string{"a.md", "b.md"}}, nil)
	s, _ := NewServer(Ports{Search: new(MockSearcher), Stats: st})

	res, out, err := s.handleStats(context.Background(), nil, StatsInput{})

	require.NoError(t, err)
	assert.Equal(t, 40, out.Chunks)
	assert.Contains(t, resultText(t, res), "Indexed: a.md, b.md")
}
