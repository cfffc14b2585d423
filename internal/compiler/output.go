package compiler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/taglet/internal/codegen"
	"github.com/conneroisu/taglet/internal/registry"
)

// WriteFiles writes files into dir and removes generated files left over
// from templates that no longer exist. Unchanged files are not rewritten,
// so build tools watching dir see only real changes.
func WriteFiles(dir string, files []codegen.File) (written int, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}

	keep := make(map[string]bool, len(files))
	for _, f := range files {
		keep[f.Name] = true
		path := filepath.Join(dir, f.Name)
		if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, f.Source) {
			continue
		}
		if err := os.WriteFile(path, f.Source, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written++
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return written, fmt.Errorf("reading output directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || keep[name] || !strings.HasSuffix(name, codegen.FileSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return written, fmt.Errorf("removing stale %s: %w", name, err)
		}
	}
	return written, nil
}

// Manifest describes the tags of a compiled registry.
type Manifest struct {
	Package string        `yaml:"package" json:"package"`
	Tags    []ManifestTag `yaml:"tags" json:"tags"`
}

// ManifestTag describes one tag and its inferred signature.
type ManifestTag struct {
	Name     string          `yaml:"name" json:"name"`
	Function string          `yaml:"function" json:"function"`
	Template string          `yaml:"template" json:"template"`
	File     string          `yaml:"file" json:"file"`
	Line     int             `yaml:"line" json:"line"`
	Calls    []string        `yaml:"calls,omitempty" json:"calls,omitempty"`
	Params   []ManifestParam `yaml:"params,omitempty" json:"params,omitempty"`
}

// ManifestParam describes one inferred parameter.
type ManifestParam struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Required bool   `yaml:"required" json:"required"`
	Default  string `yaml:"default,omitempty" json:"default,omitempty"`
}

// NewManifest builds the manifest of a result.
func NewManifest(res *Result, pkg string) *Manifest {
	m := &Manifest{Package: pkg}
	for _, def := range res.Registry.Defs() {
		tag := ManifestTag{
			Name:     def.Name,
			Function: registry.GoName(def.Name),
			Template: def.Template,
			File:     def.File,
			Line:     def.Pos.Line,
			Calls:    res.Registry.Calls(def.Name),
		}
		for _, p := range res.Signatures[def.Name].Params {
			mp := ManifestParam{Name: p.Name, Type: p.Type.String(), Required: p.Required}
			if p.Default != nil {
				mp.Default = p.Default.Source
			}
			tag.Params = append(tag.Params, mp)
		}
		m.Tags = append(m.Tags, tag)
	}
	return m
}

// YAML encodes the manifest.
func (m *Manifest) YAML() ([]byte, error) {
	var b bytes.Buffer
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return b.Bytes(), nil
}

// ParseManifest decodes a manifest written by YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &m, nil
}
