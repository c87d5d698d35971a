package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"qaforge/internal/retrieval"
)

const modelSystemPrompt = `You are an expert Selenium WebDriver (Python) developer.
Your task is to generate clean, executable Selenium test scripts.

CRITICAL REQUIREMENTS:
1. Use the EXACT element selectors (IDs, names, classes) from the provided HTML
2. Generate COMPLETE, RUNNABLE Python code
3. Include proper imports and setup
4. Add explicit waits for element loading
5. Include assertions to verify expected results
6. Add helpful comments
7. Handle common exceptions
8. Use Chrome WebDriver with webdriver-manager:
   service = Service(ChromeDriverManager().install())
   driver = webdriver.Chrome(service=service)
9. Load the page under test from a path relative to the script file:
   current_dir = os.path.dirname(os.path.abspath(__file__))
   html_path = os.path.abspath(os.path.join(current_dir, %q))
   driver.get(f"file:///{html_path}")
10. Include debug prints and error handling.`

const markupPreviewLimit = 2000

const modelTemperature float32 = 0.1

type Completer interface {
	Generate(ctx context.Context, req retrieval.GenerateRequest) (string, error)
}

// ModelStrategy asks the chat model for the script and keeps the reply only
// if it honours the output contract.
type ModelStrategy struct {
	llm Completer
}

func NewModelStrategy(llm Completer) *ModelStrategy {
	return &ModelStrategy{llm: llm}
}

func (s *ModelStrategy) Name() string { return "model" }

func (s *ModelStrategy) Attempt(ctx context.Context, in Input) (string, error) {
	temp := modelTemperature
	reply, err := s.llm.Generate(ctx, retrieval.GenerateRequest{
		Query:        Prompt(in),
		Context:      in.Docs,
		SystemPrompt: fmt.Sprintf(modelSystemPrompt, in.MarkupPath),
		Temperature:  &temp,
	})
	if err != nil {
		return "", err
	}

	src := Clean(reply)
	if err := CheckContract(src); err != nil {
		slog.WarnContext(ctx, "model script rejected", "test_id", in.TestCase.TestID, "reason", err.Error())
		return "", nil
	}
	return EnsureImports(src) + "\n", nil
}

// Prompt renders the model request for one test case.
func Prompt(in Input) string {
	tc := in.TestCase
	selectors, _ := json.MarshalIndent(in.Page.Selectors, "", "  ")
	structure, _ := json.MarshalIndent(in.Page.Structure, "", "  ")

	steps := make([]string, len(tc.Steps))
	for i, step := range tc.Steps {
		steps[i] = fmt.Sprintf("%d. %s", i+1, step)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate a Selenium Python script for this test case:\n\n")
	fmt.Fprintf(&b, "TEST CASE:\n- Test ID: %s\n- Feature: %s\n- Scenario: %s\n- Type: %s\n", tc.TestID, tc.Feature, tc.Scenario, tc.Type)
	if tc.Preconditions != "" {
		fmt.Fprintf(&b, "- Preconditions: %s\n", tc.Preconditions)
	}
	fmt.Fprintf(&b, "\nTEST STEPS:\n%s\n", strings.Join(steps, "\n"))
	fmt.Fprintf(&b, "\nEXPECTED RESULT:\n%s\n", tc.ExpectedResult)
	fmt.Fprintf(&b, "\nAVAILABLE SELECTORS:\n%s\n", selectors)
	fmt.Fprintf(&b, "\nHTML STRUCTURE ANALYSIS:\n%s\n", structure)
	fmt.Fprintf(&b, "\nFULL HTML CONTEXT (for reference):\n%s\n", truncate(in.Markup, markupPreviewLimit))
	fmt.Fprintf(&b, `
REQUIREMENTS:
1. Define a class named %s with setup(), teardown() and one or more test_ methods
2. Use the EXACT selectors listed above (prefer ID > name > class > CSS)
3. Implement every test step and assert the expected result
4. Use WebDriverWait and try/except with clear pass/fail prints
5. Include a run_test() method that runs setup, every test_ method and teardown
6. End with an if __name__ == "__main__": block that runs the test

Generate ONLY the Python script code, no explanations or markdown formatting.`, ClassName(tc.TestID))
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
