// Package mcp exposes the knowledge base and test-case generation as Model
// Context Protocol tools over streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"qaforge/features/stats"
	"qaforge/features/testcase"
	"qaforge/internal/index"
)

const Version = "0.1.0"

var ErrMissingSearcher = errors.New("mcp: knowledge base search is required")

type Searcher interface {
	Search(ctx context.Context, query string, k int, filter index.Filter) ([]index.Match, error)
}

type TestCaseGenerator interface {
	Generate(ctx context.Context, req testcase.Request) (*testcase.Result, error)
}

type StatsCollector interface {
	Collect(ctx context.Context) (*stats.Snapshot, error)
}

// Ports are the services the tools call. Generator and Stats are optional;
// their tools are not registered when nil.
type Ports struct {
	Search    Searcher
	Generator TestCaseGenerator
	Stats     StatsCollector
}

type Server struct {
	ports  Ports
	server *mcp.Server
}

func NewServer(ports Ports) (*Server, error) {
	if ports.Search == nil {
		return nil, ErrMissingSearcher
	}

	s := &Server{
		ports:  ports,
		server: mcp.NewServer(&mcp.Implementation{Name: "qaforge", Version: Version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Handler serves the MCP session endpoint.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}
