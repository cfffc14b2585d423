// Package compiler runs a full compilation pass over a set of template
// files: parse, build the tag registry, infer parameters, analyse escape
// contexts and generate Go source.
//
// Every stage runs even when an earlier one reported errors, so a single
// pass surfaces every diagnostic it can. A pass yields either a result or
// errors, never both; warnings travel with the result.
package compiler

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/codegen"
	"github.com/conneroisu/taglet/internal/errors"
	"github.com/conneroisu/taglet/internal/escape"
	"github.com/conneroisu/taglet/internal/infer"
	"github.com/conneroisu/taglet/internal/parser"
	"github.com/conneroisu/taglet/internal/registry"
	"github.com/conneroisu/taglet/internal/scanner"
)

// Options configures a Compiler.
type Options struct {
	// Package is the package clause of generated files.
	Package string
	// Extension is the template extension, used in generated comments.
	Extension string
	// Workers bounds parallel parsing. Zero uses NumCPU.
	Workers int
	// SkipGenerate stops the pass after analysis. Dev mode loads templates
	// in-process and has no use for Go source.
	SkipGenerate bool
}

// Result is the output of a successful pass.
type Result struct {
	Registry   *registry.Registry
	Signatures infer.Signatures
	Escapes    escape.Table
	// Files is empty when the pass ran with SkipGenerate.
	Files    []codegen.File
	Warnings errors.List
}

// Compiler runs compilation passes. Parsed templates are cached by file
// path and content hash, so repeated passes only reparse changed files.
// A Compiler is safe for use by one pass at a time.
type Compiler struct {
	opts Options

	mu    sync.Mutex
	cache map[string]*parsed
}

type parsed struct {
	hash     string
	template *ast.Template
	errs     errors.List
}

// New creates a Compiler.
func New(opts Options) *Compiler {
	if opts.Package == "" {
		opts.Package = "views"
	}
	if opts.Extension == "" {
		opts.Extension = scanner.DefaultExtension
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Compiler{opts: opts, cache: make(map[string]*parsed)}
}

// Compile runs a pass over files. Files must have distinct logical paths.
func (c *Compiler) Compile(ctx context.Context, files []scanner.SourceFile) (*Result, errors.List) {
	templates, parseErrs, err := c.parse(ctx, files)
	if err != nil {
		var errs errors.List
		errs.Addf(errors.KindGeneration, "", 0, 0, "compilation cancelled: %v", err)
		return nil, errs
	}

	broken := make(map[string]bool)
	for _, ce := range parseErrs {
		if ce.Severity == errors.SeverityError {
			broken[ce.File] = true
		}
	}

	var errs errors.List
	errs.Append(parseErrs)

	reg, regErrs := registry.Build(templates)
	sigs, inferErrs := infer.Infer(reg)
	table, escErrs := escape.Analyze(reg, sigs)
	for _, stage := range []errors.List{regErrs, inferErrs, escErrs} {
		errs.Append(withoutFiles(stage, broken))
	}
	errs.Append(fileCollisions(templates))

	if errs.HasErrors() {
		errs.SortByPosition()
		return nil, errs
	}

	res := &Result{
		Registry:   reg,
		Signatures: sigs,
		Escapes:    table,
		Warnings:   errs.Warnings(),
	}
	if c.opts.SkipGenerate {
		return res, nil
	}

	out, genErrs := codegen.Generate(reg, sigs, table, codegen.Options{
		Package:   c.opts.Package,
		SourceExt: c.opts.Extension,
	})
	if genErrs.HasErrors() {
		errs.Append(genErrs)
		errs.SortByPosition()
		return nil, errs
	}
	res.Files = out
	return res, nil
}

// parse parses files in parallel, reusing cached templates whose content
// hash is unchanged. Templates come back in input order.
func (c *Compiler) parse(ctx context.Context, files []scanner.SourceFile) ([]*ast.Template, errors.List, error) {
	results := make([]*parsed, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if p := c.cached(f); p != nil {
				results[i] = p
				return nil
			}
			t, errs := parser.Parse(f.DisplayName(), f.LogicalPath, f.Content)
			results[i] = &parsed{hash: f.Hash, template: t, errs: errs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	live := make(map[string]*parsed, len(files))
	for i, f := range files {
		live[f.Path] = results[i]
	}
	c.cache = live
	c.mu.Unlock()

	templates := make([]*ast.Template, len(results))
	var errs errors.List
	for i, p := range results {
		templates[i] = p.template
		errs.Append(p.errs)
	}
	return templates, errs, nil
}

func (c *Compiler) cached(f scanner.SourceFile) *parsed {
	if f.Hash == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.cache[f.Path]; ok && p.hash == f.Hash {
		return p
	}
	return nil
}

// CacheLen returns the number of cached parsed templates.
func (c *Compiler) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// withoutFiles drops diagnostics attributed to files that failed to parse.
// Their partial trees produce follow-on errors that only repeat the syntax
// error.
func withoutFiles(l errors.List, files map[string]bool) errors.List {
	if len(files) == 0 {
		return l
	}
	var out errors.List
	for _, ce := range l {
		if !files[ce.File] {
			out = append(out, ce)
		}
	}
	return out
}

// fileCollisions reports templates whose generated files would share a
// name, as "a/b" and "a_b" do.
func fileCollisions(templates []*ast.Template) errors.List {
	var errs errors.List
	seen := make(map[string]*ast.Template)
	for _, t := range templates {
		name := codegen.FileName(t.Path)
		if first, ok := seen[name]; ok {
			errs.Addf(errors.KindGeneration, t.File, 0, 0,
				"templates %q and %q both generate %s", first.Path, t.Path, name)
			continue
		}
		seen[name] = t
	}
	return errs
}
