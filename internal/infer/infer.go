package infer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/errors"
	"github.com/conneroisu/taglet/internal/registry"
	"github.com/conneroisu/taglet/pkg/runtime"
)

// use is the source location of one piece of evidence.
type use struct {
	file string
	pos  ast.Pos
}

func (u *use) String() string {
	return u.file + ":" + u.pos.String()
}

// slot gathers the evidence for one parameter of one tag.
type slot struct {
	def   *ast.TagDef
	param *Param

	content *use // bound to a body, or passed through to a content slot
	value   *use // used structurally: member access, arithmetic, conditions
	scalar  *use // bound to a scalar at a call site or rendered into text
}

// edge records a caller parameter passed unchanged to a callee
// parameter: <Card title={title}/>.
type edge struct {
	caller *slot
	callee *slot
	at     use
}

type engine struct {
	reg   *registry.Registry
	defs  []*ast.TagDef
	slots map[string]map[string]*slot
	sigs  Signatures
	edges []edge
	errs  errors.List
}

// Infer computes the signature of every tag in r. Evidence is gathered in
// a fixed order (tags by name, nodes in document order), so the result is
// deterministic for unchanged input.
func Infer(r *registry.Registry) (Signatures, errors.List) {
	e := &engine{
		reg:   r,
		defs:  r.Defs(),
		slots: make(map[string]map[string]*slot),
		sigs:  make(Signatures),
	}

	for _, def := range e.defs {
		e.collect(def)
	}
	for _, def := range e.defs {
		e.bindings(def, def.Body, nil)
	}
	e.propagate()
	for _, def := range e.defs {
		e.resolve(def)
	}
	for _, def := range e.defs {
		e.validate(def, def.Body)
	}
	return e.sigs, e.errs
}

// collect builds the parameter list of def from its declarations and the
// free names its body reads.
func (e *engine) collect(def *ast.TagDef) {
	sig := newSignature(def.Name)
	e.sigs[def.Name] = sig
	e.slots[def.Name] = make(map[string]*slot)

	for _, d := range def.Decls {
		p := &Param{
			Name:     d.Name,
			Type:     d.Type,
			Required: d.Default == nil,
			Default:  d.Default,
			Explicit: d.Type != ast.TypeUnknown,
			Pos:      d.Pos,
		}
		s := e.add(def, p)
		if d.Default == nil {
			continue
		}
		if len(d.Default.Idents) > 0 {
			e.errs.Addf(errors.KindInference, def.File, d.Pos.Line, d.Pos.Column,
				"default of parameter %q must not reference %s", d.Name, strings.Join(d.Default.Idents, ", "))
		}
		if !d.Default.IsString() && !isNil(d.Default) {
			s.value = &use{file: def.File, pos: d.Pos}
		}
	}
	e.reads(def, def.Body, nil)
}

func isNil(x *ast.Expr) bool {
	return x.IsLiteral && x.Literal == nil
}

func (e *engine) add(def *ast.TagDef, p *Param) *slot {
	s := &slot{def: def, param: p}
	e.sigs[def.Name].add(p)
	e.slots[def.Name][p.Name] = s
	return s
}

// readMode classifies how an expression reads its names.
type readMode int

const (
	// readRender renders a bare name into element content.
	readRender readMode = iota
	// readScalar renders a bare name into text, which cannot hold content.
	readScalar
	// readStructural uses names inside a larger expression.
	readStructural
	// readPassThrough binds a bare name to an argument; its evidence is
	// decided by the callee parameter.
	readPassThrough
)

// locals is the set of loop variables in scope.
type locals map[string]bool

func (l locals) with(names ...string) locals {
	out := make(locals, len(l)+len(names))
	for k := range l {
		out[k] = true
	}
	for _, n := range names {
		if n != "" {
			out[n] = true
		}
	}
	return out
}

func (e *engine) reads(def *ast.TagDef, nodes []ast.Node, scope locals) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *ast.Interpolation:
			e.read(def, n.Expr, scope, n.Pos, readRender)
		case *ast.Control:
			if n.Kind == ast.ControlFor {
				e.read(def, n.Each, scope, n.Pos, readStructural)
				e.reads(def, n.Body, scope.with(n.As, n.Index))
				continue
			}
			e.read(def, n.Cond, scope, n.Pos, readStructural)
			e.reads(def, n.Body, scope)
			e.reads(def, n.Else, scope)
		case *ast.Invocation:
			e.argReads(def, n, scope)
		}
	}
}

// argReads reads the arguments of inv. The implicit content argument and
// named slots interleave in the source, so their top-level nodes are read
// in document order.
func (e *engine) argReads(def *ast.TagDef, inv *ast.Invocation, scope locals) {
	var body []ast.Node
	for _, a := range inv.Args {
		switch a.Kind {
		case ast.ArgText:
			for _, part := range a.Parts {
				if in, ok := part.(*ast.Interpolation); ok {
					e.read(def, in.Expr, scope, in.Pos, readScalar)
				}
			}
		case ast.ArgExpr:
			e.read(def, a.Expr, scope, a.Pos, readPassThrough)
		case ast.ArgContent:
			body = append(body, a.Body...)
		}
	}
	sort.SliceStable(body, func(i, j int) bool { return body[i].Position().Before(body[j].Position()) })
	e.reads(def, body, scope)
}

func (e *engine) read(def *ast.TagDef, x *ast.Expr, scope locals, pos ast.Pos, mode readMode) {
	if x == nil {
		return
	}
	if !x.Bare {
		mode = readStructural
	}
	for _, name := range x.Idents {
		if scope[name] {
			continue
		}
		s, ok := e.slots[def.Name][name]
		if !ok {
			s = e.add(def, &Param{Name: name, Type: ast.TypeUnknown, Required: true, Pos: pos})
		}
		at := &use{file: def.File, pos: pos}
		switch mode {
		case readStructural:
			if s.value == nil {
				s.value = at
			}
		case readScalar:
			if s.scalar == nil {
				s.scalar = at
			}
		}
	}
}

// bindings records the evidence call sites give the parameters of their
// callees.
func (e *engine) bindings(def *ast.TagDef, nodes []ast.Node, scope locals) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *ast.Control:
			inner := scope
			if n.Kind == ast.ControlFor {
				inner = scope.with(n.As, n.Index)
			}
			e.bindings(def, n.Body, inner)
			e.bindings(def, n.Else, inner)
		case *ast.Invocation:
			e.bindCall(def, n, scope)
			for _, a := range n.Args {
				if a.Kind == ast.ArgContent {
					e.bindings(def, a.Body, scope)
				}
			}
		}
	}
}

func (e *engine) bindCall(def *ast.TagDef, inv *ast.Invocation, scope locals) {
	callee := e.slots[inv.Name]
	for _, a := range inv.Args {
		at := use{file: def.File, pos: a.Pos}

		// A name handed over unchanged is a pass-through when it is one of
		// the caller's parameters.
		var from *slot
		if a.Kind == ast.ArgExpr && a.Expr.Bare && !scope[a.Expr.Source] {
			from = e.slots[def.Name][a.Expr.Source]
		}

		if inv.IsBuiltin() {
			if from != nil && from.scalar == nil {
				from.scalar = &at
			}
			continue
		}
		to := callee[a.Name]
		if to == nil {
			continue
		}
		switch {
		case a.Kind == ast.ArgContent:
			if to.content == nil {
				to.content = &at
			}
		case from != nil:
			e.edges = append(e.edges, edge{caller: from, callee: to, at: at})
		default:
			if to.scalar == nil {
				to.scalar = &at
			}
		}
	}
}

func (s *slot) isContent() bool {
	return s.content != nil || s.param.Explicit && s.param.Type == ast.TypeContent
}

func (s *slot) contentUse() *use {
	if s.content != nil {
		return s.content
	}
	return &use{file: s.def.File, pos: s.param.Pos}
}

func (s *slot) isValue() bool {
	return s.value != nil || s.param.Explicit && s.param.Type == ast.TypeValue
}

// propagate spreads evidence across pass-through edges until nothing
// changes. A content parameter can only be passed to a content parameter
// and vice versa. A parameter handed to a structured value parameter is a
// structured value itself; the reverse direction needs no evidence since a
// value converts to text at the call.
func (e *engine) propagate() {
	for changed := true; changed; {
		changed = false
		for _, ed := range e.edges {
			switch {
			case ed.callee.isContent() && !ed.caller.isContent():
				at := ed.at
				ed.caller.content = &at
				changed = true
			case ed.caller.isContent() && !ed.callee.isContent():
				at := ed.at
				ed.callee.content = &at
				changed = true
			}
			if ed.callee.isValue() && ed.caller.value == nil {
				at := ed.at
				ed.caller.value = &at
				changed = true
			}
		}
	}
}

// resolve fixes the type of every parameter of def. Content wins over
// value, value over text; an explicit type wins when it is compatible with
// the evidence.
func (e *engine) resolve(def *ast.TagDef) {
	for _, p := range e.sigs[def.Name].Params {
		s := e.slots[def.Name][p.Name]
		switch {
		case s.isContent():
			if other := firstUse(s.value, s.scalar); other != nil {
				e.errs.Addf(errors.KindInference, other.file, other.pos.Line, other.pos.Column,
					"parameter %q of <%s> is used as content at %s and as a scalar here", p.Name, def.Name, s.contentUse())
			}
			if p.Explicit && p.Type != ast.TypeContent {
				e.errs.Addf(errors.KindInference, def.File, p.Pos.Line, p.Pos.Column,
					"parameter %q of <%s> is declared %s but receives content at %s", p.Name, def.Name, p.Type, s.contentUse())
			}
			p.Type = ast.TypeContent
		case p.Explicit:
			if p.Type == ast.TypeText && s.value != nil {
				e.errs.Addf(errors.KindInference, s.value.file, s.value.pos.Line, s.value.pos.Column,
					"parameter %q of <%s> is declared text but used as a structured value here", p.Name, def.Name)
			}
		case s.value != nil:
			p.Type = ast.TypeValue
		default:
			p.Type = ast.TypeText
		}
	}
}

func firstUse(uses ...*use) *use {
	var first *use
	for _, u := range uses {
		if u == nil {
			continue
		}
		if first == nil || u.file == first.file && (u.pos.Line < first.pos.Line ||
			u.pos.Line == first.pos.Line && u.pos.Column < first.pos.Column) {
			first = u
		}
	}
	return first
}

// validate checks the arguments of every invocation against the final
// signatures. Each call site missing required arguments yields exactly
// one error listing all of them.
func (e *engine) validate(def *ast.TagDef, nodes []ast.Node) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *ast.Control:
			e.validate(def, n.Body)
			e.validate(def, n.Else)
		case *ast.Invocation:
			if n.IsBuiltin() {
				e.validateBuiltin(def, n)
			} else if sig, ok := e.sigs[n.Name]; ok {
				e.validateCall(def, n, sig)
			}
			for _, a := range n.Args {
				if a.Kind == ast.ArgContent {
					e.validate(def, a.Body)
				}
			}
		}
	}
}

func (e *engine) validateCall(def *ast.TagDef, inv *ast.Invocation, sig *Signature) {
	bound := make(map[string]bool, len(inv.Args))
	for _, a := range inv.Args {
		if _, ok := sig.Param(a.Name); !ok {
			ce := errors.New(errors.KindInference, def.File, a.Pos.Line, a.Pos.Column,
				"<%s> has no parameter %q", inv.Name, a.Name)
			e.errs.Add(ce.WithSuggestions(a.Name, sig.Names()))
			continue
		}
		if bound[a.Name] {
			e.errs.Addf(errors.KindInference, def.File, a.Pos.Line, a.Pos.Column,
				"argument %q of <%s> is bound more than once", a.Name, inv.Name)
			continue
		}
		bound[a.Name] = true
	}

	var missing []string
	for _, p := range sig.Params {
		if p.Required && !bound[p.Name] {
			missing = append(missing, fmt.Sprintf("%q", p.Name))
		}
	}
	if len(missing) > 0 {
		noun := "argument"
		if len(missing) > 1 {
			noun = "arguments"
		}
		e.errs.Addf(errors.KindInference, def.File, inv.Pos.Line, inv.Pos.Column,
			"<%s> is missing required %s %s", inv.Name, noun, strings.Join(missing, ", "))
	}
}

func (e *engine) validateBuiltin(def *ast.TagDef, inv *ast.Invocation) {
	b, ok := registry.LookupBuiltin(inv.Name)
	if !ok {
		return
	}
	bound := make(map[string]bool, len(inv.Args))
	for _, a := range inv.Args {
		p, known := b.Param(a.Name)
		switch {
		case !known && a.Kind == ast.ArgContent:
			e.errs.Addf(errors.KindInference, def.File, a.Pos.Line, a.Pos.Column,
				"<%s> does not take content", inv.Name)
			continue
		case !known:
			names := make([]string, len(b.Params))
			for i, bp := range b.Params {
				names[i] = bp.Name
			}
			ce := errors.New(errors.KindInference, def.File, a.Pos.Line, a.Pos.Column,
				"<%s> has no parameter %q", inv.Name, a.Name)
			e.errs.Add(ce.WithSuggestions(a.Name, names))
			continue
		case bound[a.Name]:
			e.errs.Addf(errors.KindInference, def.File, a.Pos.Line, a.Pos.Column,
				"argument %q of <%s> is bound more than once", a.Name, inv.Name)
			continue
		case a.Kind == ast.ArgContent:
			e.errs.Addf(errors.KindInference, def.File, a.Pos.Line, a.Pos.Column,
				"argument %q of <%s> must be a scalar, not content", a.Name, inv.Name)
		case p.Static:
			text, ok := a.StaticText()
			if !ok {
				e.errs.Addf(errors.KindInference, def.File, a.Pos.Line, a.Pos.Column,
					"argument %q of <%s> must be plain quoted text", a.Name, inv.Name)
			} else if b.Write == registry.WriteSanitized && !runtime.IsPolicy(text) {
				e.errs.Addf(errors.KindInference, def.File, a.Pos.Line, a.Pos.Column,
					"unknown sanitize policy %q (want %s or %s)", text, runtime.PolicyUGC, runtime.PolicyStrict)
			}
		}
		bound[a.Name] = true
	}

	var missing []string
	for _, p := range b.Params {
		if p.Required && !bound[p.Name] {
			missing = append(missing, fmt.Sprintf("%q", p.Name))
		}
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		e.errs.Addf(errors.KindInference, def.File, inv.Pos.Line, inv.Pos.Column,
			"<%s> is missing required argument %s", inv.Name, strings.Join(missing, ", "))
	}
}
