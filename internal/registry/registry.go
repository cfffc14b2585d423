// Package registry aggregates the tags of all parsed templates into one
// name-indexed registry and resolves every invocation against it.
//
// Invocations hold tag names, never pointers to definitions, so mutually
// recursive tags need no special handling: resolution runs after every
// definition is known.
package registry

import (
	"sort"

	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/errors"
)

// Registry maps tag names to their definitions for one compilation pass.
type Registry struct {
	defs      map[string]*ast.TagDef
	names     []string
	templates []*ast.Template
	calls     map[string][]string
}

// Build inserts every tag of templates and resolves every invocation. The
// returned registry is complete even when errors are reported: duplicate
// declarations keep the first definition, in template path order.
func Build(templates []*ast.Template) (*Registry, errors.List) {
	var errs errors.List

	sorted := make([]*ast.Template, len(templates))
	copy(sorted, templates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	r := &Registry{
		defs:      make(map[string]*ast.TagDef),
		templates: sorted,
		calls:     make(map[string][]string),
	}

	goNames := make(map[string]*ast.TagDef)
	for _, t := range sorted {
		for _, def := range t.Defs {
			if first, dup := r.defs[def.Name]; dup {
				errs.Addf(errors.KindResolution, def.File, def.Pos.Line, def.Pos.Column,
					"duplicate tag %q (first declared at %s:%s)", def.Name, first.File, first.Pos)
				continue
			}
			r.defs[def.Name] = def
			r.names = append(r.names, def.Name)

			id := GoName(def.Name)
			switch other, clash := goNames[id]; {
			case id == ReservedName:
				errs.Addf(errors.KindResolution, def.File, def.Pos.Line, def.Pos.Column,
					"tag %q maps to the Go identifier %s, which is reserved", def.Name, id)
			case clash:
				errs.Addf(errors.KindResolution, def.File, def.Pos.Line, def.Pos.Column,
					"tags %q and %q both map to the Go identifier %s", other.Name, def.Name, id)
			default:
				goNames[id] = def
			}
		}
	}
	sort.Strings(r.names)

	for _, t := range sorted {
		for _, def := range t.Defs {
			r.resolve(def, &errs)
		}
	}
	errs.Append(r.cycles())
	return r, errs
}

// resolve checks every invocation in def and records its call edges.
// Duplicate definitions are walked too so their diagnostics surface.
func (r *Registry) resolve(def *ast.TagDef, errs *errors.List) {
	accepted := r.defs[def.Name] == def
	seen := make(map[string]bool)

	Walk(def.Body, func(n ast.Node, _ bool) {
		inv, ok := n.(*ast.Invocation)
		if !ok {
			return
		}
		if inv.IsBuiltin() {
			if _, ok := LookupBuiltin(inv.Name); !ok {
				ce := errors.New(errors.KindResolution, def.File, inv.Pos.Line, inv.Pos.Column,
					"unknown built-in <%s>", inv.Name)
				errs.Add(ce.WithSuggestions(inv.Name, BuiltinNames()))
			}
			return
		}
		if _, ok := r.defs[inv.Name]; !ok {
			ce := errors.New(errors.KindResolution, def.File, inv.Pos.Line, inv.Pos.Column,
				"unknown tag %q", inv.Name)
			errs.Add(ce.WithSuggestions(inv.Name, r.names))
			return
		}
		if accepted && !seen[inv.Name] {
			seen[inv.Name] = true
			r.calls[def.Name] = append(r.calls[def.Name], inv.Name)
		}
	})
	sort.Strings(r.calls[def.Name])
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*ast.TagDef, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Names returns the registered tag names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Defs returns the registered definitions ordered by name.
func (r *Registry) Defs() []*ast.TagDef {
	out := make([]*ast.TagDef, len(r.names))
	for i, name := range r.names {
		out[i] = r.defs[name]
	}
	return out
}

// Templates returns the templates of the pass ordered by logical path.
func (r *Registry) Templates() []*ast.Template {
	return r.templates
}

// Calls returns the user-defined tags invoked by name, sorted.
func (r *Registry) Calls(name string) []string {
	return r.calls[name]
}

// Len returns the number of registered tags.
func (r *Registry) Len() int {
	return len(r.names)
}

// Walk calls fn for every node of nodes in document order, descending into
// control bodies, text argument parts and content arguments. guarded is
// true for nodes nested in a Control node or a content argument, whose
// rendering is not unconditional.
func Walk(nodes []ast.Node, fn func(n ast.Node, guarded bool)) {
	walk(nodes, false, fn)
}

func walk(nodes []ast.Node, guarded bool, fn func(ast.Node, bool)) {
	for _, n := range nodes {
		fn(n, guarded)
		switch n := n.(type) {
		case *ast.Control:
			walk(n.Body, true, fn)
			walk(n.Else, true, fn)
		case *ast.Invocation:
			for _, a := range n.Args {
				switch a.Kind {
				case ast.ArgText:
					walk(a.Parts, guarded, fn)
				case ast.ArgContent:
					walk(a.Body, true, fn)
				}
			}
		}
	}
}
