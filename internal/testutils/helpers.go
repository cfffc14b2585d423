// Package testutils holds helpers shared by the compiler's package tests.
package testutils

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/errors"
	"github.com/conneroisu/taglet/internal/escape"
	"github.com/conneroisu/taglet/internal/infer"
	"github.com/conneroisu/taglet/internal/parser"
	"github.com/conneroisu/taglet/internal/registry"
)

// CreateTempProject creates a temporary template directory for testing
func CreateTempProject(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "templates")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

// WriteTemplate writes content to the .html file for logicalPath under dir
// and returns its path.
func WriteTemplate(t *testing.T, dir, logicalPath, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(logicalPath)+".html")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ParseTemplates parses files, keyed by logical path, in path order. Any
// syntax error fails the test.
func ParseTemplates(t *testing.T, files map[string]string) []*ast.Template {
	t.Helper()
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	templates := make([]*ast.Template, 0, len(paths))
	for _, p := range paths {
		tmpl, errs := parser.Parse(p+".html", p, []byte(files[p]))
		require.Empty(t, errs, "syntax errors in %s: %v", p, errs)
		templates = append(templates, tmpl)
	}
	return templates
}

// Pass is the analysed form of a template set.
type Pass struct {
	Registry   *registry.Registry
	Signatures infer.Signatures
	Escapes    escape.Table
	// Errors holds the diagnostics of every stage, warnings included.
	Errors errors.List
}

// Analyze parses files and runs registry resolution, inference and escape
// analysis over them.
func Analyze(t *testing.T, files map[string]string) *Pass {
	t.Helper()
	reg, errs := registry.Build(ParseTemplates(t, files))
	sigs, inferErrs := infer.Infer(reg)
	table, escErrs := escape.Analyze(reg, sigs)
	errs.Append(inferErrs)
	errs.Append(escErrs)
	return &Pass{Registry: reg, Signatures: sigs, Escapes: table, Errors: errs}
}

// MustAnalyze is like Analyze but fails the test on any error-severity
// diagnostic.
func MustAnalyze(t *testing.T, files map[string]string) *Pass {
	t.Helper()
	p := Analyze(t, files)
	require.False(t, p.Errors.HasErrors(), "unexpected diagnostics: %v", p.Errors)
	return p
}
