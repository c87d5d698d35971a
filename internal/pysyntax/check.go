// Package pysyntax checks that Python source parses, using the tree-sitter
// Python grammar. Nothing is executed or imported.
package pysyntax

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Check returns nil when src parses as Python, else an *Error pointing at the
// first problem.
func Check(src string) error {
	return CheckContext(context.Background(), src)
}

func CheckContext(ctx context.Context, src string) error {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, []byte(src))
	if err != nil {
		return fmt.Errorf("failed to parse python: %w", err)
	}
	defer tree.Close()

	if bad := firstProblem(tree.RootNode()); bad != nil {
		return bad
	}
	return nil
}

// firstProblem walks the tree in source order. The grammar tolerates a block
// header followed by nothing, so empty blocks are reported here too.
func firstProblem(n *sitter.Node) *Error {
	if n == nil {
		return nil
	}
	line := int(n.StartPoint().Row) + 1
	switch {
	case n.IsMissing():
		return &Error{Line: line, Msg: fmt.Sprintf("missing %q", n.Type())}
	case n.IsError():
		return &Error{Line: line, Msg: "invalid syntax"}
	case n.Type() == "block" && n.NamedChildCount() == 0:
		return &Error{Line: line, Msg: "expected an indented block"}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstProblem(n.Child(i)); bad != nil {
			return bad
		}
	}
	return nil
}
