// Package script turns test cases into runnable Selenium scripts, first by
// asking the chat model and then from templates.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"qaforge/features/testcase"
	"qaforge/internal/failure"
	"qaforge/internal/index"
	"qaforge/internal/retrieval"
)

// docsK is the number of documentation matches given to the model.
const docsK = 3

var ErrNotFound = errors.New("script not found")

type Script struct {
	TestID      string    `json:"test_id"`
	Filename    string    `json:"filename"`
	Content     string    `json:"script_content"`
	Description string    `json:"description"`
	GroundedIn  string    `json:"grounded_in"`
	Strategy    string    `json:"strategy"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter index.Filter) ([]index.Match, error)
}

type Repository interface {
	Upsert(ctx context.Context, s *Script) error
	Count(ctx context.Context) (int, error)
}

type Request struct {
	TestCase testcase.TestCase
	// Markup falls back to the uploaded page when empty.
	Markup string
}

type Result struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Script  *Script `json:"script"`
}

type Generator struct {
	strategies []Strategy
	retriever  Retriever
	repo       Repository
	scriptsDir string
	markupFile string
}

// NewGenerator tries strategies in order. markupFile is the uploaded page
// used when a request carries no markup.
func NewGenerator(retriever Retriever, repo Repository, scriptsDir, markupFile string, strategies ...Strategy) *Generator {
	return &Generator{
		strategies: strategies,
		retriever:  retriever,
		repo:       repo,
		scriptsDir: scriptsDir,
		markupFile: markupFile,
	}
}

// Generate always returns a Result; the error carries the failure kind.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	tc := req.TestCase
	res := &Result{}

	if strings.TrimSpace(tc.TestID) == "" || strings.TrimSpace(tc.Feature) == "" {
		res.Message = "Test case requires test_id and feature"
		return res, failure.New(failure.ErrValidation, "generate_script", errors.New("test_id and feature are required"))
	}

	markup := req.Markup
	if strings.TrimSpace(markup) == "" {
		data, err := os.ReadFile(g.markupFile) // #nosec G304 -- path comes from config
		if err != nil {
			res.Message = "No HTML provided and no uploaded page found"
			return res, failure.New(failure.ErrValidation, "generate_script", err)
		}
		markup = string(data)
	}

	page, err := Analyze(markup)
	if err != nil {
		res.Message = "Could not read HTML: " + err.Error()
		return res, failure.New(failure.ErrParse, "generate_script", err)
	}

	in := Input{
		TestCase:   tc,
		Markup:     markup,
		Page:       page,
		Docs:       g.docs(ctx, tc),
		MarkupPath: g.markupPath(),
	}

	var content, used string
	for _, s := range g.strategies {
		out, err := s.Attempt(ctx, in)
		if err != nil {
			slog.WarnContext(ctx, "script strategy failed, trying next", "strategy", s.Name(), "test_id", tc.TestID, "error", err)
			continue
		}
		if out == "" {
			slog.InfoContext(ctx, "script strategy declined", "strategy", s.Name(), "test_id", tc.TestID)
			continue
		}
		content, used = out, s.Name()
		break
	}
	if content == "" {
		res.Message = "No strategy produced a script"
		return res, failure.New(failure.ErrGeneration, "generate_script", errors.New("all strategies declined"))
	}

	script := &Script{
		TestID:      tc.TestID,
		Filename:    Filename(tc.TestID),
		Content:     content,
		Description: "Selenium script for test case " + tc.TestID,
		GroundedIn:  tc.GroundedIn,
		Strategy:    used,
		UpdatedAt:   time.Now().UTC(),
	}

	if err := g.save(script); err != nil {
		res.Message = "Error generating script: " + err.Error()
		return res, err
	}
	if g.repo != nil {
		if err := g.repo.Upsert(ctx, script); err != nil {
			slog.ErrorContext(ctx, "failed to record script", "filename", script.Filename, "error", err)
		}
	}

	slog.InfoContext(ctx, "script generated", "test_id", tc.TestID, "filename", script.Filename, "strategy", used)
	res.Success = true
	res.Message = "Script generated successfully: " + script.Filename
	res.Script = script
	return res, nil
}

// docs retrieves documentation for the model prompt. Retrieval problems only
// cost the model its context; the template strategy does not need it.
func (g *Generator) docs(ctx context.Context, tc testcase.TestCase) string {
	if g.retriever == nil {
		return retrieval.NoContext
	}
	matches, err := g.retriever.Retrieve(ctx, tc.Feature+" "+tc.Scenario, docsK, nil)
	if err != nil {
		slog.WarnContext(ctx, "documentation lookup failed", "test_id", tc.TestID, "error", err)
		return retrieval.NoContext
	}
	return retrieval.FormatContext(matches)
}

func (g *Generator) markupPath() string {
	rel, err := filepath.Rel(g.scriptsDir, g.markupFile)
	if err != nil {
		abs, _ := filepath.Abs(g.markupFile)
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func (g *Generator) save(s *Script) error {
	if err := os.MkdirAll(g.scriptsDir, 0o750); err != nil { // #nosec G703 -- dir comes from config
		return fmt.Errorf("failed to create scripts directory: %w", err)
	}
	path, err := g.within(s.Filename)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(s.Content), 0o644); err != nil { // #nosec G306 -- scripts are meant to be shared
		return fmt.Errorf("failed to write %s: %w", s.Filename, err)
	}
	return nil
}

// within joins name onto the scripts directory and refuses results that
// land outside it.
func (g *Generator) within(name string) (string, error) {
	root, err := filepath.Abs(g.scriptsDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve scripts directory: %w", err)
	}
	path := filepath.Join(root, name)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", failure.New(failure.ErrValidation, "save_script", fmt.Errorf("script name %q escapes the scripts directory", name))
	}
	return path, nil
}

// List returns the generated script filenames, sorted.
func (g *Generator) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(g.scriptsDir, "*.py"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	sort.Strings(names)
	return names, nil
}

// Open resolves a script name inside the scripts directory. Names that are
// not plain .py file names are reported as not found.
func (g *Generator) Open(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, ".") || filepath.Ext(name) != ".py" {
		return "", ErrNotFound
	}
	path := filepath.Join(g.scriptsDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}
