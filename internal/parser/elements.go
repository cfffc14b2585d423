package parser

import (
	"sort"
	"strings"

	"github.com/conneroisu/taglet/internal/ast"
)

// body accumulates the nodes of one sequence. Tag bodies additionally
// accept a header of <t:param> declarations; whitespace inside that header
// is dropped.
type body struct {
	p           *parser
	allowParams bool
	headerOpen  bool
	decls       []*ast.ParamDecl
	nodes       []ast.Node
}

func newBody(p *parser, allowParams bool) *body {
	return &body{p: p, allowParams: allowParams, headerOpen: allowParams}
}

func (b *body) add(n ast.Node) {
	if b.headerOpen {
		if lit, ok := n.(*ast.Literal); ok && isBlank(lit.Text) {
			b.nodes = append(b.nodes, n)
			return
		}
		b.headerOpen = false
		if len(b.decls) > 0 {
			b.nodes = b.nodes[:0]
			if lit, ok := n.(*ast.Literal); ok {
				n = trimLeading(lit)
			}
		}
	}
	b.nodes = append(b.nodes, n)
}

func (b *body) addDecl(d *ast.ParamDecl) {
	switch {
	case !b.allowParams:
		b.p.errorf(d.Pos, "<t:param> is only allowed at the start of a tag body")
		return
	case !b.headerOpen:
		b.p.errorf(d.Pos, "<t:param> must precede other content in the tag body")
		return
	}
	for _, prev := range b.decls {
		if prev.Name == d.Name {
			b.p.errorf(d.Pos, "parameter %q declared twice (first at %s)", d.Name, prev.Pos)
			return
		}
	}
	b.nodes = b.nodes[:0]
	b.decls = append(b.decls, d)
}

// trimLeading drops the leading whitespace of lit, moving its position
// past it.
func trimLeading(lit *ast.Literal) *ast.Literal {
	text := strings.TrimLeft(lit.Text, " \t\r\n\f")
	pos := lit.Pos
	for _, c := range lit.Text[:len(lit.Text)-len(text)] {
		if c == '\n' {
			pos.Line++
			pos.Column = 1
		} else {
			pos.Column++
		}
	}
	return &ast.Literal{Pos: pos, Text: text}
}

type attrKind int

const (
	attrQuoted attrKind = iota
	attrExpr
	attrBare
)

type attr struct {
	pos   ast.Pos
	name  string
	kind  attrKind
	value string
	// valueOff is the source offset of value.
	valueOff int
}

// parseAttrs scans the attributes of the element whose name ends at
// p.off. It reports whether the element is self-closing.
func (p *parser) parseAttrs(elem string, elemPos ast.Pos) ([]*attr, bool) {
	var attrs []*attr
	for {
		for p.off < len(p.text) && isSpace(p.text[p.off]) {
			p.off++
		}
		switch {
		case p.off >= len(p.text):
			p.errorf(elemPos, "unterminated <%s> tag", elem)
			return attrs, true
		case p.text[p.off] == '>':
			p.off++
			return attrs, false
		case strings.HasPrefix(p.text[p.off:], "/>"):
			p.off += 2
			return attrs, true
		}

		start := p.off
		nameEnd := scanName(p.text, start)
		if nameEnd == start {
			p.errorf(p.src.pos(start), "malformed attribute in <%s>", elem)
			return attrs, p.skipTag()
		}
		a := &attr{pos: p.src.pos(start), name: p.text[start:nameEnd], kind: attrBare}
		p.off = nameEnd

		eq := p.off
		for eq < len(p.text) && isSpace(p.text[eq]) {
			eq++
		}
		if eq >= len(p.text) || p.text[eq] != '=' {
			attrs = append(attrs, a)
			continue
		}
		p.off = eq + 1
		for p.off < len(p.text) && isSpace(p.text[p.off]) {
			p.off++
		}

		var (
			end int
			ok  bool
		)
		switch c := p.peek(0); c {
		case '"', '\'':
			a.kind = attrQuoted
			end, ok = scanQuoted(p.text, p.off)
		case '{':
			a.kind = attrExpr
			end, ok = scanBraces(p.text, p.off, false)
		default:
			p.errorf(p.src.pos(p.off), "attribute %s: value must be quoted or an {expression}", a.name)
			return attrs, p.skipTag()
		}
		if !ok {
			p.errorf(p.src.pos(p.off), "attribute %s: unterminated value", a.name)
			return attrs, p.resyncTag(p.off + 1)
		}
		a.valueOff = p.off + 1
		a.value = p.text[p.off+1 : end]
		p.off = end + 1
		attrs = append(attrs, a)
	}
}

// skipTag moves past the '>' ending the current tag and reports whether it
// was self-closing.
func (p *parser) skipTag() bool {
	end := tagEnd(p.text, p.off)
	p.off = end
	return end >= 2 && p.text[end-1] == '>' && p.text[end-2] == '/'
}

// resyncTag moves past the first '>' or newline at or after from. A tag
// ended by a newline is treated as self-closing.
func (p *parser) resyncTag(from int) bool {
	i := strings.IndexAny(p.text[from:], ">\n")
	if i < 0 {
		p.off = len(p.text)
		return true
	}
	end := from + i
	p.off = end + 1
	if p.text[end] == '\n' {
		return true
	}
	return end > 0 && p.text[end-1] == '/'
}

// scanQuoted returns the offset of the quote closing the attribute value
// opened at off. Quotes inside {expressions} do not end the value.
func scanQuoted(text string, off int) (int, bool) {
	quote := text[off]
	for i := off + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			if i+1 < len(text) && text[i+1] == '{' {
				i++
			}
		case '{':
			j, ok := scanBraces(text, i, false)
			if !ok {
				return j, false
			}
			i = j
		case quote:
			return i, true
		}
	}
	return len(text), false
}

// attrSet indexes the attributes of a built-in element, reporting
// duplicates and names the element does not accept.
func (p *parser) attrSet(elem string, attrs []*attr, allowed ...string) map[string]*attr {
	set := make(map[string]*attr, len(attrs))
	for _, a := range attrs {
		known := false
		for _, name := range allowed {
			known = known || name == a.name
		}
		switch {
		case !known:
			p.errorf(a.pos, "unknown attribute %q on <%s>", a.name, elem)
		case set[a.name] != nil:
			p.errorf(a.pos, "attribute %q repeated on <%s>", a.name, elem)
		default:
			set[a.name] = a
		}
	}
	return set
}

// nameAttr returns the static string value of a naming attribute such as
// <t:def name>. ok is false after an error was reported.
func (p *parser) nameAttr(elem string, elemPos ast.Pos, set map[string]*attr, key string, required bool, valid func(string) bool) (string, bool) {
	a := set[key]
	if a == nil {
		if required {
			p.errorf(elemPos, "<%s> requires a %s attribute", elem, key)
			return "", false
		}
		return "", true
	}
	if a.kind != attrQuoted {
		p.errorf(a.pos, "<%s> %s must be a quoted string", elem, key)
		return "", false
	}
	if !valid(a.value) {
		p.errorf(a.pos, "<%s> %s %q is not a valid name", elem, key, a.value)
		return "", false
	}
	return a.value, true
}

// exprAttr parses a control attribute. Both {expr} and "expr" are
// accepted.
func (p *parser) exprAttr(elem string, elemPos ast.Pos, set map[string]*attr, key string, required bool) *ast.Expr {
	a := set[key]
	if a == nil {
		if required {
			p.errorf(elemPos, "<%s> requires a %s attribute", elem, key)
		}
		return nil
	}
	if a.kind == attrBare || isBlank(a.value) {
		p.errorf(a.pos, "<%s> %s needs an expression", elem, key)
		return nil
	}
	e, err := ast.ParseExpr(a.value)
	if err != nil {
		p.errorf(a.pos, "<%s> %s: invalid expression %q: %s", elem, key, strings.TrimSpace(a.value), exprMessage(err))
		return nil
	}
	return e
}

// parseElement parses a compiler element starting at p.off and adds its
// result to b.
func (p *parser) parseElement(b *body, sc *scope, name string) {
	pos := p.src.pos(p.off)
	p.off += 1 + len(name)
	attrs, selfClosing := p.parseAttrs(name, pos)

	switch name {
	case elemDef:
		p.parseDef(sc, pos, attrs, selfClosing)
	case elemParam:
		p.parseParam(b, sc, pos, attrs, selfClosing)
	case elemSlot:
		p.parseSlot(sc, pos, attrs, selfClosing)
	case elemIf:
		p.parseIf(b, sc, pos, attrs, selfClosing)
	case elemElse:
		p.parseElse(b, sc, pos, attrs, selfClosing)
	case elemFor:
		p.parseFor(b, sc, pos, attrs, selfClosing)
	default:
		p.parseInvocation(b, sc, pos, name, attrs, selfClosing)
	}
}

// children parses the content of a non-self-closing element.
func (p *parser) children(sc *scope, kind scopeKind, name string, pos ast.Pos, allowParams bool) *body {
	b := newBody(p, allowParams)
	p.parseNodes(b, &scope{kind: kind, name: name, pos: pos, parent: sc})
	return b
}

func (p *parser) parseDef(sc *scope, pos ast.Pos, attrs []*attr, selfClosing bool) {
	set := p.attrSet(elemDef, attrs, "name")
	name, ok := p.nameAttr(elemDef, pos, set, "name", true, IsTagName)
	if sc.kind != scopeTop {
		p.errorf(pos, "<t:def> is only allowed at the top level of a template")
		ok = false
	}

	def := &ast.TagDef{Name: name, Pos: pos, File: p.file}
	if !selfClosing {
		b := p.children(sc, scopeDef, elemDef, pos, true)
		def.Decls, def.Body = b.decls, b.nodes
	}
	if ok {
		p.defs = append(p.defs, def)
	}
}

func (p *parser) parseParam(b *body, sc *scope, pos ast.Pos, attrs []*attr, selfClosing bool) {
	set := p.attrSet(elemParam, attrs, "name", "type", "default")
	name, ok := p.nameAttr(elemParam, pos, set, "name", true, IsIdent)

	d := &ast.ParamDecl{Pos: pos, Name: name}
	if a := set["type"]; a != nil {
		t, known := ast.ParseParamType(a.value)
		if !known || a.kind != attrQuoted {
			p.errorf(a.pos, "unknown parameter type %q (want text, content or value)", a.value)
			ok = false
		}
		d.Type = t
	}
	if set["default"] != nil {
		d.Default = p.exprAttr(elemParam, pos, set, "default", false)
		ok = ok && d.Default != nil
	}

	if !selfClosing {
		inner := p.children(sc, scopeElement, elemParam, pos, false)
		if !blankNodes(inner.nodes) {
			p.errorf(pos, "<t:param> must be empty")
		}
	}
	if ok {
		b.addDecl(d)
	}
}

func (p *parser) parseSlot(sc *scope, pos ast.Pos, attrs []*attr, selfClosing bool) {
	set := p.attrSet(elemSlot, attrs, "name")
	name, ok := p.nameAttr(elemSlot, pos, set, "name", true, IsIdent)
	if sc.kind != scopeInvocation {
		p.errorf(pos, "<t:slot> must be a direct child of a tag invocation")
		ok = false
	}

	arg := &ast.Arg{Pos: pos, Name: name, Kind: ast.ArgContent}
	if !selfClosing {
		arg.Body = p.children(sc, scopeElement, elemSlot, pos, false).nodes
	}
	if ok {
		sc.inv.Args = append(sc.inv.Args, arg)
	}
}

func (p *parser) parseIf(b *body, sc *scope, pos ast.Pos, attrs []*attr, selfClosing bool) {
	set := p.attrSet(elemIf, attrs, "cond")
	ctl := &ast.Control{Pos: pos, Kind: ast.ControlIf}
	ctl.Cond = p.exprAttr(elemIf, pos, set, "cond", true)

	if !selfClosing {
		inner := newBody(p, false)
		isc := &scope{kind: scopeIf, name: elemIf, pos: pos, parent: sc, ctl: ctl}
		p.parseNodes(inner, isc)
		ctl.Body = inner.nodes
		if isc.afterElse {
			for _, n := range inner.nodes[isc.elseIndex:] {
				if lit, ok := n.(*ast.Literal); !ok || !isBlank(lit.Text) {
					p.errorf(n.Position(), "content after <t:else> must be inside it")
					break
				}
			}
		}
	}
	if ctl.Cond != nil {
		b.add(ctl)
	}
}

func (p *parser) parseElse(b *body, sc *scope, pos ast.Pos, attrs []*attr, selfClosing bool) {
	p.attrSet(elemElse, attrs)
	var nodes []ast.Node
	if !selfClosing {
		nodes = p.children(sc, scopeElement, elemElse, pos, false).nodes
	}

	switch {
	case sc.kind != scopeIf:
		p.errorf(pos, "<t:else> must be a direct child of <t:if>")
	case sc.ctl.HasElse:
		p.errorf(pos, "<t:if> has more than one <t:else>")
	default:
		sc.ctl.Else, sc.ctl.HasElse = nodes, true
		sc.afterElse = true
		sc.elseIndex = len(b.nodes)
	}
}

func (p *parser) parseFor(b *body, sc *scope, pos ast.Pos, attrs []*attr, selfClosing bool) {
	set := p.attrSet(elemFor, attrs, "each", "as", "index")
	ctl := &ast.Control{Pos: pos, Kind: ast.ControlFor}
	ctl.Each = p.exprAttr(elemFor, pos, set, "each", true)
	as, ok := p.nameAttr(elemFor, pos, set, "as", true, IsIdent)
	index, iok := p.nameAttr(elemFor, pos, set, "index", false, IsIdent)
	if ok && iok && index != "" && index == as {
		p.errorf(set["index"].pos, "<t:for> index and as must differ")
		iok = false
	}
	ctl.As, ctl.Index = as, index

	if !selfClosing {
		ctl.Body = p.children(sc, scopeElement, elemFor, pos, false).nodes
	}
	if ctl.Each != nil && ok && iok {
		b.add(ctl)
	}
}

func (p *parser) parseInvocation(b *body, sc *scope, pos ast.Pos, name string, attrs []*attr, selfClosing bool) {
	inv := &ast.Invocation{Pos: pos, Name: name}
	for _, a := range attrs {
		arg := &ast.Arg{Pos: a.pos, Name: a.name}
		switch a.kind {
		case attrBare:
			arg.Kind = ast.ArgExpr
			arg.Expr = ast.MustParseExpr("true")
		case attrExpr:
			arg.Kind = ast.ArgExpr
			e, err := ast.ParseExpr(a.value)
			if err != nil {
				p.errorf(a.pos, "argument %s: invalid expression %q: %s", a.name, strings.TrimSpace(a.value), exprMessage(err))
				continue
			}
			arg.Expr = e
		case attrQuoted:
			arg.Kind = ast.ArgText
			arg.Parts = p.splitText(a.value, a.valueOff)
		}
		inv.Args = append(inv.Args, arg)
	}

	if !selfClosing {
		attrArgs := len(inv.Args)
		inner := newBody(p, false)
		p.parseNodes(inner, &scope{kind: scopeInvocation, name: name, pos: pos, parent: sc, inv: inv})
		if !blankNodes(inner.nodes) {
			inv.Args = append(inv.Args, &ast.Arg{
				Pos:  inner.nodes[0].Position(),
				Name: ast.ContentArg,
				Kind: ast.ArgContent,
				Body: inner.nodes,
			})
		}
		// Slots and the implicit content argument follow source order.
		children := inv.Args[attrArgs:]
		sort.SliceStable(children, func(i, j int) bool { return children[i].Pos.Before(children[j].Pos) })
	}
	b.add(inv)
}

// splitText splits a quoted attribute value into literal and
// interpolation parts. base is the value's source offset.
func (p *parser) splitText(value string, base int) []ast.Node {
	var (
		parts    []ast.Node
		lit      strings.Builder
		litStart = -1
	)
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, &ast.Literal{Pos: p.src.pos(base + litStart), Text: lit.String()})
			lit.Reset()
		}
		litStart = -1
	}
	for i := 0; i < len(value); {
		switch {
		case value[i] == '\\' && i+1 < len(value) && value[i+1] == '{':
			if litStart < 0 {
				litStart = i
			}
			lit.WriteByte('{')
			i += 2
		case value[i] == '{':
			flush()
			end, _ := scanBraces(value, i, false)
			pos := p.src.pos(base + i)
			source := value[i+1 : end]
			if isBlank(source) {
				p.errorf(pos, "empty interpolation")
			} else if e, err := ast.ParseExpr(source); err != nil {
				p.errorf(pos, "invalid expression {%s}: %s", strings.TrimSpace(source), exprMessage(err))
			} else {
				parts = append(parts, &ast.Interpolation{Pos: pos, Expr: e})
			}
			i = end + 1
		default:
			if litStart < 0 {
				litStart = i
			}
			lit.WriteByte(value[i])
			i++
		}
	}
	flush()
	return parts
}
