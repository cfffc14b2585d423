// Package codegen emits Go source for a fully resolved compilation pass:
// one file per template holding one function per tag, plus a registry
// file binding every tag to a model.
//
// Generated functions never build strings. They perform ordered writes
// through pkg/runtime: coalesced literal runs become a single rc.Raw
// constant and every interpolation becomes an rc.Write with the escape
// mode of its HTML context. Output depends only on the input templates,
// so identical input yields byte-identical files.
package codegen

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/tools/imports"

	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/errors"
	"github.com/conneroisu/taglet/internal/escape"
	"github.com/conneroisu/taglet/internal/infer"
	"github.com/conneroisu/taglet/internal/registry"
)

// RuntimeImport is the import path generated code renders through.
const RuntimeImport = "github.com/conneroisu/taglet/pkg/runtime"

// FileSuffix ends the name of every generated template file.
const FileSuffix = ".taglet.go"

// RegistryFile is the name of the generated registry file.
const RegistryFile = "taglet_registry.go"

// Options configures generation.
type Options struct {
	// Package is the package clause of the generated files.
	Package string
	// SourceExt is the template file extension, used in file comments.
	SourceExt string
}

// File is one generated source file.
type File struct {
	Name string
	// Template is the logical path of the source template; empty for the
	// registry file.
	Template string
	Source   []byte
}

// FileName returns the generated file name for a template's logical path:
// "users/profile" becomes users_profile.taglet.go.
func FileName(logicalPath string) string {
	return strings.ReplaceAll(logicalPath, "/", "_") + FileSuffix
}

// Generate emits the files for r. It must only be called for a pass
// without errors; the list it returns reports generation failures only.
func Generate(r *registry.Registry, sigs infer.Signatures, table escape.Table, opts Options) ([]File, errors.List) {
	if opts.Package == "" {
		opts.Package = "views"
	}
	var (
		files []File
		errs  errors.List
	)
	for _, t := range r.Templates() {
		var defs []*ast.TagDef
		for _, def := range t.Defs {
			if d, ok := r.Lookup(def.Name); ok && d == def {
				defs = append(defs, def)
			}
		}
		if len(defs) == 0 {
			continue
		}
		fg := &fileGen{sigs: sigs, table: table, reg: r, prefix: exprPrefix(t.Path)}
		for _, def := range defs {
			fg.tag(def)
		}
		src, err := fg.file(opts, t)
		if err != nil {
			errs.Addf(errors.KindGeneration, t.File, 0, 0, "formatting generated code: %v", err)
			continue
		}
		files = append(files, File{Name: FileName(t.Path), Template: t.Path, Source: src})
	}

	src, err := registryFile(r, sigs, opts)
	if err != nil {
		errs.Addf(errors.KindGeneration, "", 0, 0, "formatting generated registry: %v", err)
		return nil, errs
	}
	files = append(files, File{Name: RegistryFile, Source: src})
	return files, errs
}

// fileGen accumulates the functions and expression programs of one
// template file.
type fileGen struct {
	reg    *registry.Registry
	sigs   infer.Signatures
	table  escape.Table
	body   bytes.Buffer
	progs  []string
	prefix string
}

// exprPrefix names the program variables of one file. Generated files share
// a package, so each file gets its own prefix.
func exprPrefix(logicalPath string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, strings.TrimSuffix(FileName(logicalPath), FileSuffix))
	return "_" + name + "_expr"
}

// program registers a package-level compiled expression and returns its
// variable name.
func (g *fileGen) program(source string) string {
	for i, s := range g.progs {
		if s == source {
			return fmt.Sprintf("%s%d", g.prefix, i)
		}
	}
	g.progs = append(g.progs, source)
	return fmt.Sprintf("%s%d", g.prefix, len(g.progs)-1)
}

func (g *fileGen) programs(b *bytes.Buffer) {
	if len(g.progs) == 0 {
		return
	}
	b.WriteString("var (\n")
	for i, src := range g.progs {
		fmt.Fprintf(b, "%s%d = runtime.MustCompile(%s)\n", g.prefix, i, quote(src))
	}
	b.WriteString(")\n\n")
}

func (g *fileGen) file(opts Options, t *ast.Template) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("// Code generated by taglet. DO NOT EDIT.\n")
	fmt.Fprintf(&b, "// source: %s%s\n\n", t.Path, opts.SourceExt)
	fmt.Fprintf(&b, "package %s\n\n", opts.Package)
	fmt.Fprintf(&b, "import %q\n\n", RuntimeImport)
	g.programs(&b)
	b.Write(g.body.Bytes())
	return format(FileName(t.Path), b.Bytes())
}

func format(name string, src []byte) ([]byte, error) {
	out, err := imports.Process(name, src, &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
