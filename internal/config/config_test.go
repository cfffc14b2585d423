package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "./templates", cfg.Templates.Dir)
	assert.Equal(t, ".html", cfg.Templates.Extension)
	assert.Equal(t, []string{"*_test.html", "*.bak"}, cfg.Templates.Exclude)
	assert.Equal(t, "./views", cfg.Output.Dir)
	assert.Equal(t, "views", cfg.Output.Package)
	assert.Empty(t, cfg.Output.Manifest)
	assert.Equal(t, "localhost", cfg.Development.Host)
	assert.Equal(t, 8080, cfg.Development.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Development.Debounce)
	assert.True(t, cfg.Development.LiveReload)
	assert.Equal(t, 30*time.Second, cfg.Development.CompileTimeout)
	assert.False(t, cfg.Development.WriteOutput)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".taglet.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  dir: ./site
  extension: .tpl
  exclude: ["_*"]
output:
  dir: ./gen
  package: pages
  manifest: ./gen/tags.yml
development:
  port: 3000
  debounce: 250ms
  write_output: true
  check_command: go vet ./...
log:
  level: debug
  format: json
`), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "./site", cfg.Templates.Dir)
	assert.Equal(t, ".tpl", cfg.Templates.Extension)
	assert.Equal(t, []string{"_*"}, cfg.Templates.Exclude)
	assert.Equal(t, "pages", cfg.Output.Package)
	assert.Equal(t, "./gen/tags.yml", cfg.Output.Manifest)
	assert.Equal(t, 3000, cfg.Development.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Development.Debounce)
	assert.Equal(t, "go vet ./...", cfg.Development.CheckCommand)
	assert.Equal(t, "localhost", cfg.Development.Host, "unset keys keep their defaults")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("TAGLET_DEVELOPMENT_PORT", "9090")
	t.Setenv("TAGLET_OUTPUT_PACKAGE", "site")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Development.Port)
	assert.Equal(t, "site", cfg.Output.Package)
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	v := viper.New()
	v.Set("output.package", "func")

	_, err := LoadFrom(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "output.package")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)
	return cfg
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"empty template dir", func(c *Config) { c.Templates.Dir = "" }, "templates.dir"},
		{"template dir traversal", func(c *Config) { c.Templates.Dir = "../outside" }, "templates.dir"},
		{"extension without dot", func(c *Config) { c.Templates.Extension = "html" }, "templates.extension"},
		{"bad exclude glob", func(c *Config) { c.Templates.Exclude = []string{"[x"} }, "templates.exclude"},
		{"output dir injection", func(c *Config) { c.Output.Dir = "views;rm" }, "output.dir"},
		{"keyword package", func(c *Config) { c.Output.Package = "type" }, "output.package"},
		{"blank package", func(c *Config) { c.Output.Package = "_" }, "output.package"},
		{"manifest traversal", func(c *Config) { c.Output.Manifest = "../tags.yml" }, "output.manifest"},
		{"port out of range", func(c *Config) { c.Development.Port = 70000 }, "development.port"},
		{"host injection", func(c *Config) { c.Development.Host = "localhost;ls" }, "development.host"},
		{"negative debounce", func(c *Config) { c.Development.Debounce = -time.Second }, "development.debounce"},
		{"negative compile timeout", func(c *Config) { c.Development.CompileTimeout = -1 }, "development.compile_timeout"},
		{"disallowed check", func(c *Config) { c.Development.CheckCommand = "bash -c x" }, "development.check_command"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)

			result := Validate(cfg)
			require.True(t, result.HasErrors())
			require.Len(t, result.Errors, 1)
			assert.Equal(t, tt.field, result.Errors[0].Field)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := validConfig(t)
	cfg.Development.Port = 80
	cfg.Development.CheckCommand = "go vet ./..."

	result := Validate(cfg)
	assert.False(t, result.HasErrors())
	require.True(t, result.HasWarnings())
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, "development.port", result.Warnings[0].Field)
	assert.Equal(t, "development.check_command", result.Warnings[1].Field)

	out := result.String()
	assert.Contains(t, out, "Validation warnings:")
	assert.Contains(t, out, "hint: Set development.write_output to true")
	assert.NotContains(t, out, "Validation errors:")

	cfg.Development.WriteOutput = true
	cfg.Development.Port = 8080
	assert.False(t, Validate(cfg).HasWarnings())
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "log.level", Message: "unknown log level"}
	assert.Equal(t, "validation error in log.level: unknown log level", err.Error())
}
