// Package interp loads a compiled pass in-process. It builds a
// runtime.Registry of closures over precompiled expression programs whose
// writes match those of the generated Go functions, so dev mode can swap
// in new templates without building and loading a Go binary.
package interp

import (
	"fmt"
	"strings"

	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/escape"
	"github.com/conneroisu/taglet/internal/infer"
	"github.com/conneroisu/taglet/internal/registry"
	"github.com/conneroisu/taglet/pkg/runtime"
)

// env holds the values of the names visible to a node: parameters and
// loop variables.
type env map[string]any

func (e env) with(kv ...any) env {
	out := make(env, len(e)+len(kv)/2)
	for k, v := range e {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

// op is one compiled write or control step.
type op func(rc *runtime.Context, e env) error

// tagFunc renders a tag with its arguments bound by name.
type tagFunc func(rc *runtime.Context, args env) error

type loader struct {
	reg   *registry.Registry
	sigs  infer.Signatures
	table escape.Table
	tags  map[string]tagFunc
	progs map[string]*runtime.Program
}

// Load compiles every tag of a successful pass into a runtime registry.
func Load(r *registry.Registry, sigs infer.Signatures, table escape.Table) (rt *runtime.Registry, err error) {
	l := &loader{
		reg:   r,
		sigs:  sigs,
		table: table,
		tags:  make(map[string]tagFunc),
		progs: make(map[string]*runtime.Program),
	}
	defer func() {
		if p := recover(); p != nil {
			rt, err = nil, fmt.Errorf("loading templates: %v", p)
		}
	}()

	for _, def := range r.Defs() {
		l.tags[def.Name] = l.tag(def)
	}

	rt = runtime.NewRegistry()
	for _, def := range r.Defs() {
		sig := sigs[def.Name]
		render := l.tags[def.Name]
		bind := l.binder(sig)
		rt.Add(def.Name, sig.RuntimeParams(), func(rc *runtime.Context) error {
			args, err := bind(rc)
			if err != nil {
				return err
			}
			return render(rc, args)
		})
	}
	return rt, nil
}

// program returns the compiled program for source. Sources were validated
// by the parser, so a compile failure is a bug and panics.
func (l *loader) program(source string) *runtime.Program {
	if p, ok := l.progs[source]; ok {
		return p
	}
	p := runtime.MustCompile(source)
	l.progs[source] = p
	return p
}

// types tracks the static type of every name in scope while compiling.
type types map[string]ast.ParamType

func (t types) with(names ...string) types {
	out := make(types, len(t)+len(names))
	for k, v := range t {
		out[k] = v
	}
	for _, n := range names {
		if n != "" {
			out[n] = ast.TypeValue
		}
	}
	return out
}

func (l *loader) tag(def *ast.TagDef) tagFunc {
	scope := make(types)
	for _, p := range l.sigs[def.Name].Params {
		scope[p.Name] = p.Type
	}
	ops := l.nodes(def.Body, scope)
	return func(rc *runtime.Context, args env) error {
		if err := run(rc, ops, args); err != nil {
			return err
		}
		return rc.Err()
	}
}

func run(rc *runtime.Context, ops []op, e env) error {
	for _, o := range ops {
		if err := o(rc, e); err != nil {
			return err
		}
		if rc.Err() != nil {
			return rc.Err()
		}
	}
	return nil
}

func (l *loader) nodes(nodes []ast.Node, scope types) []op {
	var (
		ops []op
		lit strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			text := lit.String()
			ops = append(ops, func(rc *runtime.Context, _ env) error {
				rc.Raw(text)
				return nil
			})
			lit.Reset()
		}
	}
	for _, n := range nodes {
		if t, ok := n.(*ast.Literal); ok {
			lit.WriteString(t.Text)
			continue
		}
		flush()
		switch n := n.(type) {
		case *ast.Interpolation:
			ops = append(ops, l.interpolation(n, scope))
		case *ast.Invocation:
			ops = append(ops, l.invocation(n, scope))
		case *ast.Control:
			ops = append(ops, l.control(n, scope))
		}
	}
	flush()
	return ops
}

// evaluator computes an expression in an environment.
type evaluator func(rc *runtime.Context, e env) any

func (l *loader) expr(x *ast.Expr, scope types) (evaluator, ast.ParamType) {
	if x.Bare {
		if typ, ok := scope[x.Source]; ok {
			name := x.Source
			return func(_ *runtime.Context, e env) any { return e[name] }, typ
		}
	}
	if x.IsLiteral {
		v := x.Literal
		typ := ast.TypeValue
		if _, ok := v.(string); ok {
			typ = ast.TypeText
		}
		return func(*runtime.Context, env) any { return v }, typ
	}
	prog := l.program(x.Source)
	idents := x.Idents
	return func(rc *runtime.Context, e env) any {
		vars := make(runtime.Env, len(idents))
		for _, name := range idents {
			if v, ok := e[name]; ok {
				vars[name] = v
			}
		}
		return rc.Eval(prog, vars)
	}, ast.TypeValue
}

func (l *loader) interpolation(n *ast.Interpolation, scope types) op {
	eval, typ := l.expr(n.Expr, scope)
	esc := l.table[n]
	return func(rc *runtime.Context, e env) error {
		rc.Write(wrap(eval(rc, e), typ), esc)
		return nil
	}
}

// wrap selects the sink variant for a value of a static type.
func wrap(v any, typ ast.ParamType) runtime.Value {
	switch typ {
	case ast.TypeContent:
		return runtime.Block(runtime.AsContent(v))
	case ast.TypeText:
		return runtime.Text(runtime.ToText(v))
	default:
		return runtime.Val(v)
	}
}

// convert coerces an argument value to the type of the receiving
// parameter.
func convert(v any, from, to ast.ParamType) any {
	switch {
	case to == ast.TypeText && from != ast.TypeText:
		return runtime.ToText(v)
	case to == ast.TypeContent:
		if from == ast.TypeText {
			return runtime.TextContent(v)
		}
		return runtime.AsContent(v)
	}
	return v
}

func (l *loader) textArg(a *ast.Arg, scope types) evaluator {
	var parts []evaluator
	for _, p := range a.Parts {
		switch p := p.(type) {
		case *ast.Literal:
			text := p.Text
			parts = append(parts, func(*runtime.Context, env) any { return text })
		case *ast.Interpolation:
			eval, _ := l.expr(p.Expr, scope)
			parts = append(parts, eval)
		}
	}
	return func(rc *runtime.Context, e env) any {
		var b strings.Builder
		for _, part := range parts {
			b.WriteString(runtime.ToText(part(rc, e)))
		}
		return b.String()
	}
}

func (l *loader) block(nodes []ast.Node, scope types) evaluator {
	ops := l.nodes(nodes, scope)
	return func(_ *runtime.Context, e env) any {
		return runtime.Content(func(rc *runtime.Context) error {
			if err := run(rc, ops, e); err != nil {
				return err
			}
			return rc.Err()
		})
	}
}

func (l *loader) invocation(n *ast.Invocation, scope types) op {
	if n.IsBuiltin() {
		return l.builtin(n, scope)
	}

	type binding struct {
		name string
		eval evaluator
	}
	var args []binding
	for _, p := range l.sigs[n.Name].Params {
		eval, from := l.argument(n.Arg(p.Name), p, scope)
		to := p.Type
		args = append(args, binding{name: p.Name, eval: func(rc *runtime.Context, e env) any {
			return convert(eval(rc, e), from, to)
		}})
	}

	name := n.Name
	return func(rc *runtime.Context, e env) error {
		callee := make(env, len(args))
		for _, a := range args {
			callee[a.name] = a.eval(rc, e)
		}
		return l.tags[name](rc, callee)
	}
}

// argument returns the evaluator of a binding, or of the parameter's
// default when the call site omits it.
func (l *loader) argument(a *ast.Arg, p *infer.Param, scope types) (evaluator, ast.ParamType) {
	switch {
	case a == nil && p.Default == nil:
		return func(*runtime.Context, env) any { return nil }, p.Type
	case a == nil:
		return l.expr(p.Default, nil)
	case a.Kind == ast.ArgContent:
		return l.block(a.Body, scope), ast.TypeContent
	case a.Kind == ast.ArgText:
		return l.textArg(a, scope), ast.TypeText
	default:
		return l.expr(a.Expr, scope)
	}
}

func (l *loader) builtin(n *ast.Invocation, scope types) op {
	b, _ := registry.LookupBuiltin(n.Name)
	value := func(*runtime.Context, env) any { return nil }
	if a := n.Arg("value"); a != nil {
		if a.Kind == ast.ArgText {
			value = l.textArg(a, scope)
		} else {
			value, _ = l.expr(a.Expr, scope)
		}
	}
	policy := b.StaticArg(n, "policy")
	return func(rc *runtime.Context, e env) error {
		v := value(rc, e)
		switch b.Write {
		case registry.WriteRaw:
			rc.Write(runtime.Val(v), runtime.EscapeNone)
		case registry.WriteMarkdown:
			rc.WriteMarkdown(v)
		case registry.WriteSanitized:
			rc.WriteSanitized(v, policy)
		}
		return nil
	}
}

func (l *loader) control(n *ast.Control, scope types) op {
	if n.Kind == ast.ControlIf {
		cond, typ := l.expr(n.Cond, scope)
		then := l.nodes(n.Body, scope)
		otherwise := l.nodes(n.Else, scope)
		return func(rc *runtime.Context, e env) error {
			v := cond(rc, e)
			ok := runtime.Truthy(v)
			if typ == ast.TypeContent {
				ok = runtime.AsContent(v) != nil
			}
			if ok {
				return run(rc, then, e)
			}
			return run(rc, otherwise, e)
		}
	}

	each, _ := l.expr(n.Each, scope)
	body := l.nodes(n.Body, scope.with(n.As, n.Index))
	as, index := n.As, n.Index
	return func(rc *runtime.Context, e env) error {
		for _, entry := range rc.Range(each(rc, e)) {
			inner := e.with(as, entry.Value)
			if index != "" {
				inner[index] = entry.Key
			}
			if err := run(rc, body, inner); err != nil {
				return err
			}
		}
		return nil
	}
}

// binder returns a function reading a tag's arguments from the model the
// same way the generated Registry does.
func (l *loader) binder(sig *infer.Signature) func(rc *runtime.Context) (env, error) {
	type param struct {
		p   *infer.Param
		def evaluator
	}
	params := make([]param, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = param{p: p}
		if p.Default != nil {
			eval, from := l.expr(p.Default, nil)
			to := p.Type
			params[i].def = func(rc *runtime.Context, e env) any {
				return convert(eval(rc, e), from, to)
			}
		}
	}

	return func(rc *runtime.Context) (env, error) {
		args := make(env, len(params))
		for _, pp := range params {
			p := pp.p
			if p.Required {
				var (
					v   any
					err error
				)
				switch p.Type {
				case ast.TypeText:
					v, err = runtime.RequiredText(rc, p.Name)
				case ast.TypeContent:
					v, err = runtime.RequiredContent(rc, p.Name)
				default:
					v, err = runtime.RequiredValue(rc, p.Name)
				}
				if err != nil {
					return nil, err
				}
				args[p.Name] = v
				continue
			}

			def := pp.def
			switch p.Type {
			case ast.TypeText:
				s, err := runtime.OptionalText(rc, p.Name, func() string {
					return runtime.ToText(def(rc, nil))
				})
				if err != nil {
					return nil, err
				}
				args[p.Name] = s
			case ast.TypeContent:
				args[p.Name] = runtime.OptionalContent(rc, p.Name, func() runtime.Content {
					c, _ := def(rc, nil).(runtime.Content)
					return c
				})
			default:
				args[p.Name] = runtime.OptionalValue(rc, p.Name, func() any { return def(rc, nil) })
			}
		}
		return args, nil
	}
}
