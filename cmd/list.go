package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/conneroisu/taglet/internal/compiler"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List all tags and their inferred parameters",
	Long: `List every tag defined under the template directory with its Go
function name, source position and inferred parameters.

Examples:
  taglet list                     # List all tags in table format
  taglet list -f json             # Output as JSON
  taglet list --format yaml       # Output as YAML (the manifest format)`,
	RunE: runList,
}

var listFormat string

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "Output format (table, json, yaml)")

	AddFlagValidation(listCmd, "format", func(format string) error {
		return ValidateFormatWithSuggestion(format, []string{"table", "json", "yaml"})
	})
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	res, errs, err := compileTemplates(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	if errs.HasErrors() {
		printDiagnostics(cmd.ErrOrStderr(), errs)
		return errCompilationFailed
	}

	manifest := compiler.NewManifest(res, cfg.Output.Package)
	out := cmd.OutOrStdout()

	switch strings.ToLower(listFormat) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	case "yaml":
		data, err := manifest.YAML()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	default:
		return outputTable(out, manifest)
	}
}

func outputTable(out io.Writer, m *compiler.Manifest) error {
	if len(m.Tags) == 0 {
		fmt.Fprintln(out, "No tags found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tFUNCTION\tLOCATION\tPARAMETERS")
	for _, tag := range m.Tags {
		params := make([]string, 0, len(tag.Params))
		for _, p := range tag.Params {
			s := p.Name + " " + p.Type
			if !p.Required {
				s += "?"
			}
			params = append(params, s)
		}
		fmt.Fprintf(w, "%s\t%s\t%s:%d\t%s\n",
			tag.Name, tag.Function, tag.File, tag.Line, strings.Join(params, ", "))
	}
	return w.Flush()
}
