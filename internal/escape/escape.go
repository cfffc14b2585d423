package escape

import (
	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/errors"
	"github.com/conneroisu/taglet/internal/infer"
	"github.com/conneroisu/taglet/internal/registry"
	"github.com/conneroisu/taglet/pkg/runtime"
)

// Table maps every interpolation written to the output to its escape
// mode. It is a side table so parsed templates stay immutable.
type Table map[*ast.Interpolation]runtime.Escape

type analyzer struct {
	sigs  infer.Signatures
	table Table
	errs  errors.List
}

// Analyze computes the escape mode of every interpolation in r and reports
// constructs whose HTML context cannot be escaped safely.
func Analyze(r *registry.Registry, sigs infer.Signatures) (Table, errors.List) {
	a := &analyzer{sigs: sigs, table: make(Table)}
	for _, def := range r.Defs() {
		end := a.nodes(def, def.Body, State{}, nil)
		if end.Context != ContextText {
			a.errs.Addf(errors.KindGeneration, def.File, def.Pos.Line, def.Pos.Column,
				"tag %q ends inside an HTML %s", def.Name, end.Context)
		}
	}
	return a.table, a.errs
}

func (a *analyzer) nodes(def *ast.TagDef, nodes []ast.Node, s State, locals map[string]bool) State {
	for _, n := range nodes {
		switch n := n.(type) {
		case *ast.Literal:
			s = Advance(s, n.Text)
		case *ast.Interpolation:
			a.interpolation(def, n, s, locals)
		case *ast.Invocation:
			s = a.invocation(def, n, s, locals)
		case *ast.Control:
			s = a.control(def, n, s, locals)
		}
	}
	return s
}

func (a *analyzer) interpolation(def *ast.TagDef, n *ast.Interpolation, s State, locals map[string]bool) {
	switch s.Context {
	case ContextText:
		a.table[n] = runtime.EscapeHTML
		return
	case ContextQuotedAttr:
		if a.isContent(def, n.Expr, locals) {
			a.errorf(def, n.Pos, "content parameter %q cannot be written inside the %s attribute", n.Expr.Source, s.Attr)
			return
		}
		if s.URL() {
			a.table[n] = runtime.EscapeURL
		} else {
			a.table[n] = runtime.EscapeAttr
		}
		return
	case ContextUnquotedAttr, ContextBeforeValue:
		a.errorf(def, n.Pos, "interpolation in the unquoted value of attribute %s; quote the value", s.Attr)
	case ContextRawText:
		a.errorf(def, n.Pos, "interpolation inside <%s> is not supported", s.Elem)
	default:
		a.errorf(def, n.Pos, "interpolation in HTML %s context; only text and quoted attribute values can be interpolated", s.Context)
	}
}

// isContent reports whether x is a bare read of a content parameter.
func (a *analyzer) isContent(def *ast.TagDef, x *ast.Expr, locals map[string]bool) bool {
	if !x.Bare || locals[x.Source] {
		return false
	}
	sig, ok := a.sigs[def.Name]
	if !ok {
		return false
	}
	p, ok := sig.Param(x.Source)
	return ok && p.Type == ast.TypeContent
}

func (a *analyzer) invocation(def *ast.TagDef, n *ast.Invocation, s State, locals map[string]bool) State {
	if s.Context != ContextText {
		a.errorf(def, n.Pos, "<%s> is invoked inside an HTML %s; tags can only be invoked where text is allowed", n.Name, s.Context)
	}
	for _, arg := range n.Args {
		if arg.Kind != ast.ArgContent {
			continue
		}
		if end := a.nodes(def, arg.Body, State{}, locals); end.Context != ContextText {
			a.errorf(def, arg.Pos, "content argument %q of <%s> ends inside an HTML %s", arg.Name, n.Name, end.Context)
		}
	}
	return s
}

func (a *analyzer) control(def *ast.TagDef, n *ast.Control, s State, locals map[string]bool) State {
	if n.Kind == ast.ControlFor {
		inner := make(map[string]bool, len(locals)+2)
		for k := range locals {
			inner[k] = true
		}
		inner[n.As] = true
		if n.Index != "" {
			inner[n.Index] = true
		}
		if end := a.nodes(def, n.Body, s, inner); end != s {
			a.errorf(def, n.Pos, "body of <t:for> starts in HTML %s but ends in %s", s.Context, end.Context)
		}
		return s
	}

	then := a.nodes(def, n.Body, s, locals)
	otherwise := s
	if n.HasElse {
		otherwise = a.nodes(def, n.Else, s, locals)
	}
	if then != otherwise {
		a.errorf(def, n.Pos, "branches of <t:if> end in different HTML contexts (%s and %s)", then.Context, otherwise.Context)
	}
	return then
}

func (a *analyzer) errorf(def *ast.TagDef, pos ast.Pos, format string, args ...any) {
	a.errs.Addf(errors.KindGeneration, def.File, pos.Line, pos.Column, format, args...)
}
