package parser

import (
	"strings"
	"unicode"
)

// Normalize drops control characters, collapses runs of spaces and tabs
// inside a line and squeezes blank-line runs to a single blank line. Leading
// indentation and line breaks are kept so markdown structure survives.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if isControl(r) {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = squeezeLine(line)
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// isControl matches [\x00-\x08\x0b\x0c\x0e-\x1f\x7f-\x9f].
func isControl(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return false
	case r <= 0x1f:
		return true
	case r >= 0x7f && r <= 0x9f:
		return true
	}
	return false
}

func squeezeLine(line string) string {
	line = strings.TrimRightFunc(line, unicode.IsSpace)
	body := strings.TrimLeftFunc(line, isHorizontalSpace)
	indent := line[:len(line)-len(body)]

	var b strings.Builder
	b.Grow(len(line))
	b.WriteString(indent)
	inSpace := false
	for _, r := range body {
		if isHorizontalSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func isHorizontalSpace(r rune) bool {
	return r != '\n' && unicode.IsSpace(r)
}
