package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/taglet/internal/compiler"
	"github.com/conneroisu/taglet/internal/errors"
)

// execute runs the root command with args and captures its output.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	templates := filepath.Join(dir, "templates")
	out := filepath.Join(dir, "views")
	writeTemplate(t, templates, "button.html", `<t:def name="Button"><button onclick="{onClick}">{text}</button></t:def>`)
	writeTemplate(t, templates, "pages/home.html", `<Button onClick="go()" text="{label}"/>`)

	stdout, _, err := execute(t, "generate", "-t", templates, "-o", out, "--package", "views")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Compiled 2 tag(s)")

	assert.FileExists(t, filepath.Join(out, "button.taglet.go"))
	assert.FileExists(t, filepath.Join(out, "pages_home.taglet.go"))
	assert.FileExists(t, filepath.Join(out, "taglet_registry.go"))
}

func TestCheckCommandReportsDiagnostics(t *testing.T) {
	templates := t.TempDir()
	writeTemplate(t, templates, "page.html", "<p>\n<Crad/>\n</p>")
	writeTemplate(t, templates, "card.html", `<t:def name="Card"><div/></t:def>`)

	_, stderr, err := execute(t, "check", "-t", templates)
	require.ErrorIs(t, err, errCompilationFailed)
	assert.Contains(t, stderr, "page.html:2:1")
	assert.Contains(t, stderr, `unknown tag "Crad"`)
	assert.Contains(t, stderr, "did you mean Card?")
	assert.Contains(t, stderr, "1 error(s), 0 warning(s)")
}

func TestListCommandJSON(t *testing.T) {
	templates := t.TempDir()
	writeTemplate(t, templates, "badge.html", `<t:def name="Badge"><t:param name="size" default="'md'"/><span class="{size}">{label}</span></t:def>`)

	stdout, _, err := execute(t, "list", "-t", templates, "--format", "json")
	require.NoError(t, err)

	var m compiler.Manifest
	require.NoError(t, json.Unmarshal([]byte(stdout), &m))
	require.Len(t, m.Tags, 1)
	assert.Equal(t, "Badge", m.Tags[0].Name)
	require.Len(t, m.Tags[0].Params, 2)
	assert.Equal(t, "size", m.Tags[0].Params[0].Name)
	assert.False(t, m.Tags[0].Params[0].Required)
}

func TestListFormatValidation(t *testing.T) {
	_, _, err := execute(t, "list", "--format", "yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "yaml"?`)
	listFormat = "table"
}

func TestOutputTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputTable(&buf, &compiler.Manifest{}))
	assert.Equal(t, "No tags found.\n", buf.String())

	buf.Reset()
	require.NoError(t, outputTable(&buf, &compiler.Manifest{Tags: []compiler.ManifestTag{{
		Name:     "Button",
		Function: "Button",
		File:     "button.html",
		Line:     1,
		Params: []compiler.ManifestParam{
			{Name: "onClick", Type: "text", Required: true},
			{Name: "size", Type: "text"},
		},
	}}}))
	assert.Contains(t, buf.String(), "TAG")
	assert.Contains(t, buf.String(), "button.html:1")
	assert.Contains(t, buf.String(), "onClick text, size text?")
}

func TestPrintDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	printDiagnostics(&buf, errors.List{
		errors.Warning(errors.KindResolution, "loop.html", 1, 1, "recurses"),
	})
	assert.Contains(t, buf.String(), "loop.html:1:1")
	assert.Contains(t, buf.String(), "recurses")
	assert.Contains(t, buf.String(), "1 warning(s)")
}

func TestValidateFormatWithSuggestion(t *testing.T) {
	assert.NoError(t, ValidateFormatWithSuggestion("JSON", []string{"table", "json"}))
	err := ValidateFormatWithSuggestion("tabel", []string{"table", "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "table"?`)
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.NotEmpty(t, stdout)
	versionShort = false
}
