// Package parser turns template source into an ast.Template.
//
// The parser is a single forward scan over the markup. Plain HTML is kept
// as literal text; only t: elements and invocations (upper-case or dotted
// element names) open nested structure. Malformed input is reported and
// the scan resynchronizes at the next plausible boundary, so one pass
// collects every syntax error in a file up to maxErrors.
package parser

import (
	stderrors "errors"
	"strings"

	"github.com/expr-lang/expr/file"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/errors"
)

// maxErrors is the number of syntax errors after which a file is reported
// unrecoverable.
const maxErrors = 25

// Built-in element names handled by the parser itself.
const (
	elemDef   = "t:def"
	elemParam = "t:param"
	elemSlot  = "t:slot"
	elemIf    = "t:if"
	elemElse  = "t:else"
	elemFor   = "t:for"
)

type parser struct {
	file string
	text string
	src  *source
	off  int

	errs  errors.List
	abort bool

	defs []*ast.TagDef

	// rawName is the raw-text element (script, style) whose content starts
	// at rawAt.
	rawName string
	rawAt   int
}

// Parse parses one template file. It always returns a template; when the
// list holds errors the template is a best-effort recovery that is only
// fit for diagnostics.
func Parse(file, logicalPath string, src []byte) (*ast.Template, errors.List) {
	text := string(src)
	p := &parser{file: file, text: text, src: newSource(text)}

	root := &ast.TagDef{
		Name:     ast.RootName(logicalPath),
		Root:     true,
		Pos:      ast.Pos{Line: 1, Column: 1},
		File:     file,
		Template: logicalPath,
	}
	b := newBody(p, true)
	p.parseNodes(b, &scope{kind: scopeTop})
	root.Decls, root.Body = b.decls, b.nodes

	tmpl := &ast.Template{Path: logicalPath, File: file}
	if len(root.Decls) > 0 || !blankNodes(root.Body) {
		tmpl.Defs = append(tmpl.Defs, root)
	}
	for _, d := range p.defs {
		d.Template = logicalPath
		tmpl.Defs = append(tmpl.Defs, d)
	}
	return tmpl, p.errs
}

func (p *parser) errorf(pos ast.Pos, format string, args ...any) {
	if p.abort {
		return
	}
	if len(p.errs) >= maxErrors-1 {
		p.errs.Addf(errors.KindSyntax, p.file, pos.Line, pos.Column,
			"too many errors, giving up on this file")
		p.abort = true
		return
	}
	p.errs.Addf(errors.KindSyntax, p.file, pos.Line, pos.Column, format, args...)
}

func (p *parser) peek(n int) byte {
	if p.off+n < len(p.text) {
		return p.text[p.off+n]
	}
	return 0
}

type scopeKind int

const (
	scopeTop scopeKind = iota
	scopeDef
	scopeInvocation
	scopeIf
	scopeElement
)

// scope is an open compiler element whose close tag ends a node sequence.
type scope struct {
	kind   scopeKind
	name   string
	pos    ast.Pos
	parent *scope

	// inv collects <t:slot> arguments of an invocation.
	inv *ast.Invocation
	// ctl receives the <t:else> branch of a conditional.
	ctl       *ast.Control
	afterElse bool
	elseIndex int
}

func (s *scope) encloses(name string) bool {
	for a := s.parent; a != nil; a = a.parent {
		if a.name == name {
			return true
		}
	}
	return false
}

// parseNodes scans nodes into b until the close tag of sc, the close tag of
// one of its ancestors, or the end of input.
func (p *parser) parseNodes(b *body, sc *scope) {
	var lit strings.Builder
	litStart := -1
	write := func(s string) {
		if litStart < 0 {
			litStart = p.off
		}
		lit.WriteString(s)
	}
	flush := func() {
		if lit.Len() > 0 {
			b.add(&ast.Literal{Pos: p.src.pos(litStart), Text: lit.String()})
			lit.Reset()
		}
		litStart = -1
	}

	for !p.abort && p.off < len(p.text) {
		if p.rawName != "" && p.off >= p.rawAt {
			end := p.src.indexFold(p.off, "</"+p.rawName)
			write(p.text[p.off:end])
			p.off = end
			p.rawName = ""
			continue
		}

		c := p.text[p.off]
		switch {
		case c == '\\' && p.peek(1) == '{':
			write("{")
			p.off += 2
		case c == '{':
			flush()
			p.parseInterpolation(b)
		case c == '<' && strings.HasPrefix(p.text[p.off:], "<!--"):
			end := strings.Index(p.text[p.off+4:], "-->")
			if end < 0 {
				end = len(p.text)
			} else {
				end += p.off + 7
			}
			write(p.text[p.off:end])
			p.off = end
		case c == '<' && p.peek(1) == '/':
			nameEnd := scanName(p.text, p.off+2)
			name := p.text[p.off+2 : nameEnd]
			if !isTagletName(name) {
				write("<")
				p.off++
				continue
			}
			flush()
			if p.closeTag(sc, name) {
				return
			}
		case c == '<':
			nameEnd := scanName(p.text, p.off+1)
			name := p.text[p.off+1 : nameEnd]
			if isTagletName(name) {
				flush()
				p.parseElement(b, sc, name)
				continue
			}
			if a := atom.Lookup([]byte(strings.ToLower(name))); a == atom.Script || a == atom.Style {
				p.rawName = a.String()
				p.rawAt = tagEnd(p.text, nameEnd)
			}
			write(p.text[p.off:nameEnd])
			p.off = nameEnd
		default:
			write(p.text[p.off : p.off+1])
			p.off++
		}
	}
	flush()
	if sc.kind != scopeTop && !p.abort {
		p.errorf(sc.pos, "unclosed <%s>", sc.name)
	}
}

// closeTag consumes the close tag at p.off. It reports whether the
// sequence of sc ends here: either the tag closes sc, or it closes an
// ancestor and sc is reported unclosed (the tag is then left for the
// ancestor to consume).
func (p *parser) closeTag(sc *scope, name string) bool {
	pos := p.src.pos(p.off)
	end := scanName(p.text, p.off+2)
	for end < len(p.text) && isSpace(p.text[end]) {
		end++
	}
	if end >= len(p.text) || p.text[end] != '>' {
		p.errorf(pos, "malformed closing tag </%s>", name)
		end = tagEnd(p.text, end) - 1
	}

	switch {
	case name == sc.name:
		p.off = end + 1
		return true
	case sc.encloses(name):
		p.errorf(sc.pos, "unclosed <%s>", sc.name)
		return true
	default:
		p.errorf(pos, "unexpected closing tag </%s>", name)
		p.off = end + 1
		return false
	}
}

func (p *parser) parseInterpolation(b *body) {
	start := p.off
	pos := p.src.pos(start)
	end, ok := scanBraces(p.text, start, true)
	if !ok {
		p.errorf(pos, "unterminated interpolation: '{' is not closed on the same line")
		p.off = end
		if p.off < len(p.text) {
			p.off++
		}
		return
	}
	p.off = end + 1

	source := p.text[start+1 : end]
	if isBlank(source) {
		p.errorf(pos, "empty interpolation")
		return
	}
	e, err := ast.ParseExpr(source)
	if err != nil {
		p.errorf(pos, "invalid expression {%s}: %s", strings.TrimSpace(source), exprMessage(err))
		return
	}
	b.add(&ast.Interpolation{Pos: pos, Expr: e})
}

// exprMessage returns the first-line message of an expr-lang error without
// its source snippet.
func exprMessage(err error) string {
	var fe *file.Error
	if stderrors.As(err, &fe) {
		return fe.Message
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

// tagEnd returns the offset just past the '>' ending the tag whose
// attributes start at off, skipping quoted values and {expressions}.
func tagEnd(text string, off int) int {
	for i := off; i < len(text); i++ {
		switch text[i] {
		case '>':
			return i + 1
		case '"', '\'':
			j := strings.IndexByte(text[i+1:], text[i])
			if j < 0 {
				return len(text)
			}
			i += j + 1
		case '{':
			j, ok := scanBraces(text, i, false)
			if !ok {
				return len(text)
			}
			i = j
		}
	}
	return len(text)
}

func blankNodes(nodes []ast.Node) bool {
	for _, n := range nodes {
		lit, ok := n.(*ast.Literal)
		if !ok || !isBlank(lit.Text) {
			return false
		}
	}
	return true
}
