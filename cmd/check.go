package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report template diagnostics without writing files",
	Long: `Run every analysis stage over the templates and print all
diagnostics. Exits non-zero when any template has an error.

Examples:
  taglet check                    # Check ./templates
  taglet check -t site/templates  # Check another directory`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	res, errs, err := compileTemplates(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		printDiagnostics(cmd.ErrOrStderr(), errs)
	}
	if errs.HasErrors() {
		return errCompilationFailed
	}
	if len(res.Warnings) > 0 {
		printDiagnostics(cmd.ErrOrStderr(), res.Warnings)
	}

	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(
		fmt.Sprintf("%d tag(s) OK", len(res.Registry.Defs()))))
	return nil
}
