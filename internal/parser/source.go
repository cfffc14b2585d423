package parser

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/conneroisu/taglet/internal/ast"
)

// source wraps template text with offset to position mapping.
type source struct {
	text       string
	lineStarts []int
}

func newSource(text string) *source {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &source{text: text, lineStarts: starts}
}

// pos converts a byte offset into a 1-based line and rune column.
func (s *source) pos(off int) ast.Pos {
	if off > len(s.text) {
		off = len(s.text)
	}
	line := sort.Search(len(s.lineStarts), func(i int) bool {
		return s.lineStarts[i] > off
	}) - 1
	col := utf8.RuneCountInString(s.text[s.lineStarts[line]:off]) + 1
	return ast.Pos{Line: line + 1, Column: col}
}

// hasPrefixFold reports whether text at off starts with prefix, ignoring
// ASCII case.
func (s *source) hasPrefixFold(off int, prefix string) bool {
	if off+len(prefix) > len(s.text) {
		return false
	}
	return strings.EqualFold(s.text[off:off+len(prefix)], prefix)
}

// indexFold returns the offset of the first case-insensitive occurrence of
// needle at or after off, or len(text) when there is none.
func (s *source) indexFold(off int, needle string) int {
	for i := off; i+len(needle) <= len(s.text); i++ {
		if s.hasPrefixFold(i, needle) {
			return i
		}
	}
	return len(s.text)
}

// scanBraces returns the offset of the '}' matching the '{' at off. String
// literals inside the expression may contain braces. With sameLine set a
// newline before the close fails the scan. The second result is false when
// no matching brace was found.
func scanBraces(text string, off int, sameLine bool) (int, bool) {
	depth := 0
	for i := off; i < len(text); i++ {
		switch c := text[i]; c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		case '\n':
			if sameLine {
				return i, false
			}
		case '"', '\'', '`':
			end, ok := skipString(text, i, sameLine)
			if !ok {
				return end, false
			}
			i = end
		}
	}
	return len(text), false
}

// skipString returns the offset of the quote closing the string literal
// opened at off.
func skipString(text string, off int, sameLine bool) (int, bool) {
	quote := text[off]
	for i := off + 1; i < len(text); i++ {
		switch c := text[i]; {
		case c == '\\' && quote != '`':
			i++
		case c == quote:
			return i, true
		case c == '\n' && sameLine:
			return i, false
		}
	}
	return len(text), false
}

func isNameStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isNameChar(c byte) bool {
	return isNameStart(c) || c >= '0' && c <= '9' || c == '.' || c == ':' || c == '-'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// scanName returns the end of the element or attribute name starting at
// off.
func scanName(text string, off int) int {
	if off >= len(text) || !isNameStart(text[off]) {
		return off
	}
	i := off + 1
	for i < len(text) && isNameChar(text[i]) {
		i++
	}
	return i
}

// isTagletName reports whether an element name belongs to the compiler:
// t: built-ins and invocations, whose names start upper-case or contain a
// dot.
func isTagletName(name string) bool {
	if name == "" {
		return false
	}
	if strings.HasPrefix(name, ast.BuiltinPrefix) {
		return true
	}
	return name[0] >= 'A' && name[0] <= 'Z' || strings.Contains(name, ".")
}

// IsIdent reports whether name is a valid parameter or loop variable
// name.
func IsIdent(name string) bool {
	if name == "" || !isNameStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !isNameStart(c) && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// IsTagName reports whether name is valid for a <t:def> tag.
func IsTagName(name string) bool {
	return IsIdent(name) && name[0] >= 'A' && name[0] <= 'Z'
}

func isBlank(s string) bool {
	return strings.TrimLeft(s, " \t\r\n\f") == ""
}
