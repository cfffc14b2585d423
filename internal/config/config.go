// Package config provides configuration management for taglet using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration supports a .taglet.yml file, environment variable
// overrides with the TAGLET_ prefix and validation. It covers where
// templates live, where generated code goes, the development server and
// logging.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override, as in
// TAGLET_TEMPLATES_DIR.
const EnvPrefix = "TAGLET"

// Config is the complete taglet configuration.
type Config struct {
	Templates   TemplatesConfig   `mapstructure:"templates" yaml:"templates"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

// TemplatesConfig selects the template sources.
type TemplatesConfig struct {
	Dir       string   `mapstructure:"dir" yaml:"dir"`
	Extension string   `mapstructure:"extension" yaml:"extension"`
	Exclude   []string `mapstructure:"exclude" yaml:"exclude"`
}

// OutputConfig controls generated code.
type OutputConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Package string `mapstructure:"package" yaml:"package"`
	// Manifest is the path of the YAML tag manifest; empty disables it.
	Manifest string `mapstructure:"manifest" yaml:"manifest"`
}

// DevelopmentConfig controls the development server and hot reload.
type DevelopmentConfig struct {
	Host       string        `mapstructure:"host" yaml:"host"`
	Port       int           `mapstructure:"port" yaml:"port"`
	Debounce   time.Duration `mapstructure:"debounce" yaml:"debounce"`
	LiveReload bool          `mapstructure:"live_reload" yaml:"live_reload"`
	// AllowedOrigins are extra websocket origin patterns, such as
	// "localhost:*".
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	CompileTimeout time.Duration `mapstructure:"compile_timeout" yaml:"compile_timeout"`
	// WriteOutput also writes generated sources to output.dir after every
	// successful recompilation.
	WriteOutput  bool          `mapstructure:"write_output" yaml:"write_output"`
	CheckCommand string        `mapstructure:"check_command" yaml:"check_command"`
	CheckTimeout time.Duration `mapstructure:"check_timeout" yaml:"check_timeout"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("templates.dir", "./templates")
	v.SetDefault("templates.extension", ".html")
	v.SetDefault("templates.exclude", []string{"*_test.html", "*.bak"})

	v.SetDefault("output.dir", "./views")
	v.SetDefault("output.package", "views")
	v.SetDefault("output.manifest", "")

	v.SetDefault("development.host", "localhost")
	v.SetDefault("development.port", 8080)
	v.SetDefault("development.debounce", 100*time.Millisecond)
	v.SetDefault("development.live_reload", true)
	v.SetDefault("development.allowed_origins", []string{})
	v.SetDefault("development.compile_timeout", 30*time.Second)
	v.SetDefault("development.write_output", false)
	v.SetDefault("development.check_command", "")
	v.SetDefault("development.check_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	// Environment overrides of slices arrive as one space-separated string
	if v.IsSet("templates.exclude") && len(config.Templates.Exclude) == 0 {
		config.Templates.Exclude = v.GetStringSlice("templates.exclude")
	}

	result := Validate(&config)
	if result.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %w", &result.Errors[0])
	}
	return &config, nil
}
