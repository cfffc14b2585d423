//go:build property

package config

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ports in range validate", prop.ForAll(
		func(port int) bool {
			cfg := &Config{
				Templates:   TemplatesConfig{Dir: "./templates", Extension: ".html"},
				Output:      OutputConfig{Dir: "./views", Package: "views"},
				Development: DevelopmentConfig{Host: "localhost", Port: port},
				Log:         LogConfig{Level: "info", Format: "text"},
			}
			return !Validate(cfg).HasErrors()
		},
		gen.IntRange(0, 65535),
	))

	properties.Property("paths with traversal are rejected", prop.ForAll(
		func(a, b string) bool {
			return validatePath(a+"/../../"+b) != nil
		},
		gen.RegexMatch(`^[a-z]{1,8}$`),
		gen.RegexMatch(`^[a-z]{1,8}$`),
	))

	properties.Property("path validation is deterministic", prop.ForAll(
		func(p string) bool {
			first := validatePath(p)
			second := validatePath(p)
			return (first == nil) == (second == nil)
		},
		gen.AnyString().SuchThat(func(s string) bool { return !strings.ContainsRune(s, 0) }),
	))

	properties.TestingRun(t)
}
