// Package errors provides the compiler diagnostics used across the taglet
// pipeline.
//
// Diagnostics are collected, never thrown one at a time: every stage of a
// compilation pass appends CompilerError values to a List, and the caller
// decides at the end whether the pass produced output or a report.
package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a compiler error by the stage that produced it.
type Kind int

const (
	KindSyntax Kind = iota
	KindResolution
	KindInference
	KindGeneration
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindResolution:
		return "resolution"
	case KindInference:
		return "inference"
	case KindGeneration:
		return "generation"
	default:
		return "unknown"
	}
}

// Severity represents the severity of a diagnostic
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// CompilerError is a single diagnostic attributed to a source position.
type CompilerError struct {
	Kind        Kind
	Severity    Severity
	Message     string
	File        string
	Line        int
	Column      int
	Suggestions []string
}

// Error implements the error interface
func (ce *CompilerError) Error() string {
	var b strings.Builder
	if ce.File != "" {
		b.WriteString(ce.File)
		if ce.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", ce.Line, ce.Column)
		}
		b.WriteString(": ")
	}
	if ce.Severity == SeverityWarning {
		b.WriteString("warning: ")
	}
	b.WriteString(ce.Message)
	if len(ce.Suggestions) > 0 {
		fmt.Fprintf(&b, " (did you mean %s?)", strings.Join(quoteAll(ce.Suggestions), ", "))
	}
	return b.String()
}

// Location returns the file:line:column prefix of the diagnostic.
func (ce *CompilerError) Location() string {
	if ce.Line == 0 {
		return ce.File
	}
	return fmt.Sprintf("%s:%d:%d", ce.File, ce.Line, ce.Column)
}

// New creates an error-severity diagnostic.
func New(kind Kind, file string, line, column int, format string, args ...any) *CompilerError {
	return &CompilerError{
		Kind:     kind,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
		File:     file,
		Line:     line,
		Column:   column,
	}
}

// Warning creates a warning-severity diagnostic.
func Warning(kind Kind, file string, line, column int, format string, args ...any) *CompilerError {
	ce := New(kind, file, line, column, format, args...)
	ce.Severity = SeverityWarning
	return ce
}

// List is an ordered collection of diagnostics.
type List []*CompilerError

// Add appends a diagnostic. Nil values are ignored.
func (l *List) Add(ce *CompilerError) {
	if ce == nil {
		return
	}
	*l = append(*l, ce)
}

// Addf appends an error-severity diagnostic.
func (l *List) Addf(kind Kind, file string, line, column int, format string, args ...any) {
	l.Add(New(kind, file, line, column, format, args...))
}

// Append appends every diagnostic of other.
func (l *List) Append(other List) {
	*l = append(*l, other...)
}

// HasErrors reports whether the list holds any error-severity diagnostic.
func (l List) HasErrors() bool {
	for _, ce := range l {
		if ce.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the error-severity diagnostics.
func (l List) Errors() List {
	return l.filter(SeverityError)
}

// Warnings returns the warning-severity diagnostics.
func (l List) Warnings() List {
	return l.filter(SeverityWarning)
}

func (l List) filter(sev Severity) List {
	var out List
	for _, ce := range l {
		if ce.Severity == sev {
			out = append(out, ce)
		}
	}
	return out
}

// ByFile returns the diagnostics attributed to file.
func (l List) ByFile(file string) List {
	var out List
	for _, ce := range l {
		if ce.File == file {
			out = append(out, ce)
		}
	}
	return out
}

// SortByPosition orders diagnostics by file, line and column. The sort is
// stable so diagnostics at the same position keep their stage order.
func (l List) SortByPosition() {
	sort.SliceStable(l, func(i, j int) bool {
		a, b := l[i], l[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

// Err returns the list as an error, or nil when it holds no errors.
func (l List) Err() error {
	if !l.HasErrors() {
		return nil
	}
	return &ListError{List: l.Errors()}
}

// ListError wraps a non-empty List of error-severity diagnostics.
type ListError struct {
	List List
}

// Error implements the error interface
func (e *ListError) Error() string {
	if len(e.List) == 1 {
		return e.List[0].Error()
	}
	lines := make([]string, 0, len(e.List)+1)
	lines = append(lines, fmt.Sprintf("%d compiler errors:", len(e.List)))
	for _, ce := range e.List {
		lines = append(lines, "  "+ce.Error())
	}
	return strings.Join(lines, "\n")
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
