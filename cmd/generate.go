package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/taglet/internal/compiler"
)

var generateCmd = &cobra.Command{
	Use:     "generate",
	Aliases: []string{"g", "build"},
	Short:   "Compile templates into Go render functions",
	Long: `Compile every template under the template directory into Go source.

Each template file becomes one <name>.taglet.go file in the output
directory, and taglet_registry.go binds every tag by name. Nothing is
written when any template has an error.

Examples:
  taglet generate                          # Compile ./templates into ./views
  taglet generate -o internal/views        # Write to another directory
  taglet generate --manifest tags.yml      # Also write a YAML tag manifest
  taglet generate --profile cpu            # Profile the compilation`,
	RunE: runGenerate,
}

var (
	generateProfile    string
	generateProfileDir string
)

var profileModes = map[string]func(*profile.Profile){
	"cpu":   profile.CPUProfile,
	"mem":   profile.MemProfile,
	"trace": profile.TraceProfile,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringP("output", "o", "", "Output directory (default ./views)")
	generateCmd.Flags().String("package", "", "Package name of generated files (default views)")
	generateCmd.Flags().String("manifest", "", "Write a YAML tag manifest to this path")
	generateCmd.Flags().StringVar(&generateProfile, "profile", "", "Profile the compilation (cpu, mem, trace)")
	generateCmd.Flags().StringVar(&generateProfileDir, "profile-dir", ".", "Directory for profile output")

	viper.BindPFlag("output.dir", generateCmd.Flags().Lookup("output"))
	viper.BindPFlag("output.package", generateCmd.Flags().Lookup("package"))
	viper.BindPFlag("output.manifest", generateCmd.Flags().Lookup("manifest"))

	AddFlagValidation(generateCmd, "profile", func(mode string) error {
		return ValidateFormatWithSuggestion(mode, []string{"cpu", "mem", "trace"})
	})
}

// startProfile starts the requested profile, or nothing for an empty mode.
func startProfile(mode, dir string) interface{ Stop() } {
	fn, ok := profileModes[mode]
	if !ok {
		return noProfile{}
	}
	return profile.Start(fn, profile.ProfilePath(dir), profile.Quiet)
}

type noProfile struct{}

func (noProfile) Stop() {}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	defer startProfile(generateProfile, generateProfileDir).Stop()

	start := time.Now()
	res, errs, err := compileTemplates(cmd.Context(), cfg, false)
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

	written, err := compiler.WriteFiles(cfg.Output.Dir, res.Files)
	if err != nil {
		return err
	}

	if cfg.Output.Manifest != "" {
		data, err := compiler.NewManifest(res, cfg.Output.Package).YAML()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Output.Manifest), 0o755); err != nil {
			return fmt.Errorf("creating manifest directory: %w", err)
		}
		if err := os.WriteFile(cfg.Output.Manifest, data, 0o644); err != nil {
			return fmt.Errorf("writing manifest: %w", err)
		}
	}

	logger.Debug(cmd.Context(), "Generation finished",
		"tags", len(res.Registry.Defs()),
		"files", len(res.Files),
		"written", written,
		"duration", time.Since(start))

	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf(
		"Compiled %d tag(s) into %s (%d file(s) updated) in %s",
		len(res.Registry.Defs()), cfg.Output.Dir, written, time.Since(start).Round(time.Millisecond))))
	return nil
}
