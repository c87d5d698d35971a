package testcase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"qaforge/internal/failure"
	"qaforge/internal/index"
)

const (
	TypePositive = "positive"
	TypeNegative = "negative"
	TypeEdgeCase = "edge_case"
)

// DefaultGrounding is used when no retrieved match names a source.
const DefaultGrounding = "documentation"

type TestCase struct {
	TestID         string   `json:"test_id"`
	Feature        string   `json:"feature"`
	Scenario       string   `json:"test_scenario"`
	Type           string   `json:"test_type"`
	Preconditions  string   `json:"preconditions"`
	Steps          []string `json:"test_steps"`
	ExpectedResult string   `json:"expected_result"`
	GroundedIn     string   `json:"grounded_in"`
}

// Record is a persisted test case.
type Record struct {
	ID        int64     `json:"id"`
	Query     string    `json:"query"`
	TestCase  TestCase  `json:"test_case"`
	CreatedAt time.Time `json:"created_at"`
}

// TestID formats the n-th generated id, starting at 1.
func TestID(n int) string {
	return fmt.Sprintf("TC-%03d", n)
}

// Validate reports the first missing required field.
func (tc *TestCase) Validate() error {
	switch {
	case strings.TrimSpace(tc.TestID) == "":
		return missing("test_id")
	case strings.TrimSpace(tc.Feature) == "":
		return missing("feature")
	case strings.TrimSpace(tc.Scenario) == "":
		return missing("test_scenario")
	case tc.Type != TypePositive && tc.Type != TypeNegative && tc.Type != TypeEdgeCase:
		return failure.New(failure.ErrValidation, "test_case", fmt.Errorf("test_type %q is not one of positive, negative, edge_case", tc.Type))
	case len(tc.Steps) == 0:
		return missing("test_steps")
	case strings.TrimSpace(tc.ExpectedResult) == "":
		return missing("expected_result")
	case strings.TrimSpace(tc.GroundedIn) == "":
		return missing("grounded_in")
	}
	for i, s := range tc.Steps {
		if strings.TrimSpace(s) == "" {
			return failure.New(failure.ErrValidation, "test_case", fmt.Errorf("test_steps[%d] is empty", i))
		}
	}
	return nil
}

func missing(field string) error {
	return failure.New(failure.ErrValidation, "test_case", fmt.Errorf("missing %s", field))
}

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	arrayJSON  = regexp.MustCompile(`(?s)\[.*\]`)
)

// extractJSON recovers the list of items from a free-form reply. Candidates
// are tried in order: a fenced json block, the widest [...] span, the whole
// reply. A single object is promoted to a one-element list; an array counts
// only when it holds objects.
func extractJSON(reply string) ([]json.RawMessage, error) {
	var candidates []string
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := arrayJSON.FindString(reply); m != "" {
		candidates = append(candidates, m)
	}
	candidates = append(candidates, reply)

	var lastErr error
	for _, c := range candidates {
		items, err := decodeItems(c)
		if err == nil {
			return items, nil
		}
		lastErr = err
	}
	return nil, failure.New(failure.ErrExtraction, "extract", lastErr)
}

func decodeItems(s string) ([]json.RawMessage, error) {
	s = strings.TrimSpace(s)
	var list []json.RawMessage
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		for _, item := range list {
			if !bytes.HasPrefix(bytes.TrimSpace(item), []byte("{")) {
				return nil, errors.New("array does not hold objects")
			}
		}
		return list, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	return []json.RawMessage{json.RawMessage(s)}, nil
}

// inferGrounding joins the distinct sources of the top three matches.
func inferGrounding(matches []index.Match) string {
	seen := map[string]bool{}
	var sources []string
	for i, m := range matches {
		if i == 3 {
			break
		}
		if m.SourceDocument != "" && !seen[m.SourceDocument] {
			seen[m.SourceDocument] = true
			sources = append(sources, m.SourceDocument)
		}
	}
	if len(sources) == 0 {
		return DefaultGrounding
	}
	sort.Strings(sources)
	return strings.Join(sources, ", ")
}

// normalize decodes item n (0-based), fills test_id and grounded_in when
// absent and validates the result.
func normalize(raw json.RawMessage, n int, grounding string) (*TestCase, error) {
	var tc TestCase
	if err := json.Unmarshal(raw, &tc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, failure.New(failure.ErrValidation, "test_case", fmt.Errorf("field %s has the wrong type", typeErr.Field))
		}
		return nil, failure.New(failure.ErrValidation, "test_case", err)
	}
	if strings.TrimSpace(tc.TestID) == "" {
		tc.TestID = TestID(n + 1)
	}
	if strings.TrimSpace(tc.GroundedIn) == "" {
		tc.GroundedIn = grounding
	}
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return &tc, nil
}
