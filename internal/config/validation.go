package config

import (
	"fmt"
	"go/token"
	"path/filepath"
	"strings"

	"github.com/conneroisu/taglet/internal/build"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder
	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			fmt.Fprintf(&builder, "  - %s: %s\n", issue.Field, issue.Message)
			for _, suggestion := range issue.Suggestions {
				fmt.Fprintf(&builder, "    hint: %s\n", suggestion)
			}
		}
	}
	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)
	return builder.String()
}

func (vr *ValidationResult) errorf(field string, value interface{}, suggestions []string, format string, args ...interface{}) {
	vr.Errors = append(vr.Errors, ValidationError{
		Field:       field,
		Value:       value,
		Message:     fmt.Sprintf(format, args...),
		Suggestions: suggestions,
	})
}

func (vr *ValidationResult) warnf(field string, value interface{}, suggestions []string, format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, ValidationError{
		Field:       field,
		Value:       value,
		Message:     fmt.Sprintf(format, args...),
		Suggestions: suggestions,
	})
}

// Validate checks every section of config.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{}
	validateTemplates(&config.Templates, result)
	validateOutput(&config.Output, result)
	validateDevelopment(&config.Development, result)
	validateLog(&config.Log, result)
	return result
}

func validateTemplates(config *TemplatesConfig, result *ValidationResult) {
	if err := validatePath(config.Dir); err != nil {
		result.errorf("templates.dir", config.Dir, nil, "%v", err)
	}
	if !strings.HasPrefix(config.Extension, ".") || len(config.Extension) < 2 {
		result.errorf("templates.extension", config.Extension,
			[]string{"Use an extension with a leading dot, such as .html"},
			"extension %q must start with a dot", config.Extension)
	}
	for _, pattern := range config.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			result.errorf("templates.exclude", pattern, nil, "invalid glob %q: %v", pattern, err)
		}
	}
}

func validateOutput(config *OutputConfig, result *ValidationResult) {
	if err := validatePath(config.Dir); err != nil {
		result.errorf("output.dir", config.Dir, nil, "%v", err)
	}
	if !token.IsIdentifier(config.Package) || token.IsKeyword(config.Package) || config.Package == "_" {
		result.errorf("output.package", config.Package,
			[]string{"Use a lowercase Go package name such as views"},
			"%q is not a valid Go package name", config.Package)
	}
	if config.Manifest != "" {
		if err := validatePath(config.Manifest); err != nil {
			result.errorf("output.manifest", config.Manifest, nil, "%v", err)
		}
	}
}

func validateDevelopment(config *DevelopmentConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.errorf("development.port", config.Port,
			[]string{"Common development ports: 3000, 8080, 8000", "Port 0 lets the system assign a port"},
			"port %d is not in valid range 0-65535", config.Port)
	} else if config.Port > 0 && config.Port < 1024 {
		result.warnf("development.port", config.Port,
			[]string{"Use a port between 1024-65535 for non-privileged access"},
			"port below 1024 requires elevated privileges")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			result.errorf("development.host", config.Host, nil, "host contains dangerous character: %s", char)
			break
		}
	}

	if config.Debounce < 0 {
		result.errorf("development.debounce", config.Debounce, nil, "debounce must not be negative")
	}
	if config.CompileTimeout < 0 {
		result.errorf("development.compile_timeout", config.CompileTimeout, nil, "compile timeout must not be negative")
	}
	if config.CheckCommand != "" {
		if _, err := build.NewCommandCheck(config.CheckCommand, ".", config.CheckTimeout); err != nil {
			result.errorf("development.check_command", config.CheckCommand,
				[]string{"Allowed commands: go, gofmt, staticcheck"}, "%v", err)
		}
		if !config.WriteOutput {
			result.warnf("development.check_command", config.CheckCommand,
				[]string{"Set development.write_output to true"},
				"check command only runs when generated sources are written")
		}
	}
}

func validateLog(config *LogConfig, result *ValidationResult) {
	switch strings.ToLower(config.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result.errorf("log.level", config.Level, []string{"Use debug, info, warn or error"},
			"unknown log level %q", config.Level)
	}
	switch config.Format {
	case "text", "json":
	default:
		result.errorf("log.format", config.Format, []string{"Use text or json"},
			"unknown log format %q", config.Format)
	}
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}
	return nil
}
