package script

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"qaforge/features/testcase"
	"qaforge/internal/pysyntax"
)

// Input is everything a strategy may use to write one script.
type Input struct {
	TestCase testcase.TestCase
	Markup   string
	Page     *Page
	// Docs is the formatted documentation context for the test case.
	Docs string
	// MarkupPath is the page location relative to the scripts directory.
	MarkupPath string
}

// Strategy produces script source for one test case. An empty result with a
// nil error means the strategy declined and the next one should run.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, in Input) (string, error)
}

// Preamble is prepended to model output that does not open with an import.
const Preamble = `from selenium import webdriver
from selenium.webdriver.common.by import By
from selenium.webdriver.support.ui import WebDriverWait
from selenium.webdriver.support import expected_conditions as EC
from selenium.webdriver.chrome.service import Service
from webdriver_manager.chrome import ChromeDriverManager
from selenium.common.exceptions import TimeoutException, NoSuchElementException
import time
import os

`

var contractTokens = []string{
	"import",
	"selenium",
	"webdriver",
	"class test",
	"def setup",
	"def teardown",
	"def test_",
}

var mainGuard = regexp.MustCompile(`if\s+__name__\s*==\s*["']__main__["']\s*:`)

var fenced = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\n(.*?)```")

// Filename is the deterministic script name for a test id. Anything other
// than ASCII letters, digits and underscores becomes an underscore, so the
// name never carries a path separator.
func Filename(testID string) string {
	return "test_" + strings.ToLower(identifier(testID)) + ".py"
}

// ClassName is the Python test class for a test id.
func ClassName(testID string) string {
	return "Test" + identifier(testID)
}

func identifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Clean strips markdown fencing from a model reply.
func Clean(reply string) string {
	if m := fenced.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// CheckContract verifies the required structure and that the source parses.
func CheckContract(src string) error {
	lower := strings.ToLower(src)
	for _, tok := range contractTokens {
		if !strings.Contains(lower, tok) {
			return fmt.Errorf("missing required component %q", tok)
		}
	}
	if !mainGuard.MatchString(src) {
		return fmt.Errorf("missing required component %q", `if __name__ == "__main__"`)
	}
	if err := pysyntax.Check(src); err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}
	return nil
}

// EnsureImports prepends Preamble when the first statement is not an import.
func EnsureImports(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ") {
			return src
		}
		break
	}
	return Preamble + src
}
