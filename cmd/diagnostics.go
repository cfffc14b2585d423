package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/conneroisu/taglet/internal/compiler"
	"github.com/conneroisu/taglet/internal/config"
	"github.com/conneroisu/taglet/internal/errors"
	"github.com/conneroisu/taglet/internal/scanner"
)

var (
	locationStyle   = lipgloss.NewStyle().Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warningStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	kindStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	suggestionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	successStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// errCompilationFailed is returned after diagnostics have been printed, so
// the process exits non-zero without printing them twice.
var errCompilationFailed = stderrors.New("compilation failed")

// printDiagnostics writes one styled line per diagnostic and a summary.
func printDiagnostics(w io.Writer, l errors.List) {
	for _, ce := range l {
		label := errorStyle.Render("error")
		if ce.Severity == errors.SeverityWarning {
			label = warningStyle.Render("warning")
		}
		fmt.Fprintf(w, "%s: %s %s %s\n",
			locationStyle.Render(ce.Location()),
			label,
			ce.Message,
			kindStyle.Render("["+ce.Kind.String()+"]"))
		for _, s := range ce.Suggestions {
			fmt.Fprintf(w, "  %s\n", suggestionStyle.Render("did you mean "+s+"?"))
		}
	}

	errs, warns := len(l.Errors()), len(l.Warnings())
	switch {
	case errs > 0:
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("%d error(s), %d warning(s)", errs, warns)))
	case warns > 0:
		fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("%d warning(s)", warns)))
	}
}

// compileTemplates scans the configured template directory and runs one
// compilation pass over it.
func compileTemplates(ctx context.Context, cfg *config.Config, skipGenerate bool) (*compiler.Result, errors.List, error) {
	files, err := scanner.Scan(ctx, cfg.Templates.Dir, scannerOptions(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("scanning %s: %w", cfg.Templates.Dir, err)
	}

	c := compiler.New(compiler.Options{
		Package:      cfg.Output.Package,
		Extension:    cfg.Templates.Extension,
		SkipGenerate: skipGenerate,
	})
	res, errs := c.Compile(ctx, files)
	return res, errs, nil
}

func scannerOptions(cfg *config.Config) scanner.Options {
	return scanner.Options{
		Extension: cfg.Templates.Extension,
		Exclude:   cfg.Templates.Exclude,
	}
}
