package codegen

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/infer"
	"github.com/conneroisu/taglet/internal/registry"
	"github.com/conneroisu/taglet/pkg/runtime"
)

// binding is a template name visible in generated code.
type binding struct {
	goName string
	typ    ast.ParamType
}

type scope struct {
	vars   map[string]binding
	parent *scope
}

func (s *scope) lookup(name string) (binding, bool) {
	for c := s; c != nil; c = c.parent {
		if b, ok := c.vars[name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

// funcGen emits the body of one tag function.
type funcGen struct {
	*fileGen
	def   *ast.TagDef
	w     *bytes.Buffer
	names *namer
	scope *scope
	loops int
}

func (g *fileGen) tag(def *ast.TagDef) {
	sig := g.sigs[def.Name]
	f := &funcGen{
		fileGen: g,
		def:     def,
		w:       &g.body,
		names:   newNamer(g.reg),
		scope:   &scope{vars: make(map[string]binding)},
	}

	params := make([]string, 0, len(sig.Params)+1)
	params = append(params, "rc *runtime.Context")
	for _, p := range sig.Params {
		goName := f.names.declare(p.Name)
		f.scope.vars[p.Name] = binding{goName: goName, typ: p.Type}
		params = append(params, goName+" "+goType(p.Type))
	}

	name := registry.GoName(def.Name)
	if def.Root {
		fmt.Fprintf(f.w, "// %s renders the template %s.\n", name, def.Template)
	} else {
		fmt.Fprintf(f.w, "// %s renders the %s tag.\n", name, def.Name)
	}
	fmt.Fprintf(f.w, "func %s(%s) error {\n", name, strings.Join(params, ", "))
	f.nodes(def.Body)
	f.w.WriteString("return rc.Err()\n}\n\n")
}

func zero(t ast.ParamType) string {
	if t == ast.TypeText {
		return `""`
	}
	return "nil"
}

func goType(t ast.ParamType) string {
	switch t {
	case ast.TypeContent:
		return "runtime.Content"
	case ast.TypeValue:
		return "any"
	default:
		return "string"
	}
}

func (f *funcGen) printf(format string, args ...any) {
	fmt.Fprintf(f.w, format, args...)
}

// nodes emits a node sequence, coalescing consecutive literals into one
// constant write.
func (f *funcGen) nodes(nodes []ast.Node) {
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			f.printf("rc.Raw(%s)\n", quote(lit.String()))
			lit.Reset()
		}
	}
	for _, n := range nodes {
		if l, ok := n.(*ast.Literal); ok {
			lit.WriteString(l.Text)
			continue
		}
		flush()
		switch n := n.(type) {
		case *ast.Interpolation:
			code, typ := f.value(n.Expr)
			f.write(code, typ, f.table[n])
		case *ast.Invocation:
			f.invocation(n)
		case *ast.Control:
			f.control(n)
		}
	}
	flush()
}

func (f *funcGen) write(code string, typ ast.ParamType, esc runtime.Escape) {
	switch typ {
	case ast.TypeContent:
		f.printf("rc.Write(runtime.Block(%s), %s)\n", code, escapeName(esc))
	case ast.TypeText:
		f.printf("rc.Write(runtime.Text(%s), %s)\n", code, escapeName(esc))
	default:
		f.printf("rc.Write(runtime.Val(%s), %s)\n", code, escapeName(esc))
	}
}

func escapeName(esc runtime.Escape) string {
	switch esc {
	case runtime.EscapeAttr:
		return "runtime.EscapeAttr"
	case runtime.EscapeURL:
		return "runtime.EscapeURL"
	case runtime.EscapeNone:
		return "runtime.EscapeNone"
	default:
		return "runtime.EscapeHTML"
	}
}

// value returns Go code evaluating x and the static type of its result.
// Bare names and constants are used directly; anything else runs through a
// package-level program.
func (f *funcGen) value(x *ast.Expr) (string, ast.ParamType) {
	if x.Bare {
		if b, ok := f.scope.lookup(x.Source); ok {
			return b.goName, b.typ
		}
	}
	if x.IsLiteral {
		return literal(x.Literal)
	}
	return fmt.Sprintf("rc.Eval(%s, %s)", f.program(x.Source), f.env(x)), ast.TypeValue
}

func (f *funcGen) env(x *ast.Expr) string {
	if len(x.Idents) == 0 {
		return "nil"
	}
	pairs := make([]string, 0, len(x.Idents))
	for _, name := range x.Idents {
		if b, ok := f.scope.lookup(name); ok {
			pairs = append(pairs, fmt.Sprintf("%q: %s", name, b.goName))
		}
	}
	return "runtime.Env{" + strings.Join(pairs, ", ") + "}"
}

// literal returns Go code for a constant expression value.
func literal(v any) (string, ast.ParamType) {
	switch v := v.(type) {
	case nil:
		return "nil", ast.TypeValue
	case string:
		return quote(v), ast.TypeText
	case bool:
		return strconv.FormatBool(v), ast.TypeValue
	case int:
		return strconv.Itoa(v), ast.TypeValue
	case float64:
		return "float64(" + strconv.FormatFloat(v, 'g', -1, 64) + ")", ast.TypeValue
	default:
		return fmt.Sprintf("%#v", v), ast.TypeValue
	}
}

// text returns Go code producing the string form of a value.
func text(code string, typ ast.ParamType) string {
	if typ == ast.TypeText {
		return code
	}
	return "runtime.ToText(" + code + ")"
}

// textArg returns Go code building the string of a quoted argument.
func (f *funcGen) textArg(a *ast.Arg) string {
	if len(a.Parts) == 0 {
		return `""`
	}
	parts := make([]string, 0, len(a.Parts))
	for _, p := range a.Parts {
		switch p := p.(type) {
		case *ast.Literal:
			parts = append(parts, quote(p.Text))
		case *ast.Interpolation:
			parts = append(parts, text(f.value(p.Expr)))
		}
	}
	return strings.Join(parts, " + ")
}

func (f *funcGen) invocation(n *ast.Invocation) {
	if n.IsBuiltin() {
		f.builtin(n)
		return
	}
	sig := f.sigs[n.Name]
	args := []string{"rc"}
	for _, p := range sig.Params {
		a := n.Arg(p.Name)
		if a == nil {
			args = append(args, f.defaultArg(p))
			continue
		}
		args = append(args, f.arg(a, p))
	}
	f.printf("if err := %s(%s); err != nil {\nreturn err\n}\n", registry.GoName(n.Name), strings.Join(args, ", "))
}

// arg returns Go code converting an argument binding to the type of p.
func (f *funcGen) arg(a *ast.Arg, p *infer.Param) string {
	switch a.Kind {
	case ast.ArgContent:
		return f.block(a.Body)
	case ast.ArgText:
		code := f.textArg(a)
		if p.Type == ast.TypeContent {
			return "runtime.TextContent(" + code + ")"
		}
		return code
	}

	code, typ := f.value(a.Expr)
	switch {
	case p.Type == typ:
		return code
	case p.Type == ast.TypeText:
		return text(code, typ)
	case p.Type == ast.TypeContent:
		return "runtime.AsContent(" + code + ")"
	default:
		return code
	}
}

// defaultArg synthesizes the default of an omitted optional parameter at
// the call site.
func (f *funcGen) defaultArg(p *infer.Param) string {
	if p.Default == nil {
		return zero(p.Type)
	}
	code, typ := f.value(p.Default)
	switch p.Type {
	case ast.TypeContent:
		if typ == ast.TypeText {
			return "runtime.TextContent(" + code + ")"
		}
		return "runtime.AsContent(" + code + ")"
	case ast.TypeText:
		return text(code, typ)
	default:
		return code
	}
}

// block emits a content closure for a node sequence. The closure shares
// the enclosing scope.
func (f *funcGen) block(nodes []ast.Node) string {
	outer := f.w
	var b bytes.Buffer
	f.w = &b
	b.WriteString("func(rc *runtime.Context) error {\n")
	f.nodes(nodes)
	b.WriteString("return rc.Err()\n}")
	f.w = outer
	return b.String()
}

func (f *funcGen) builtin(n *ast.Invocation) {
	b, _ := registry.LookupBuiltin(n.Name)
	value := "nil"
	if a := n.Arg("value"); a != nil {
		if a.Kind == ast.ArgText {
			value = f.textArg(a)
		} else {
			value, _ = f.value(a.Expr)
		}
	}
	switch b.Write {
	case registry.WriteRaw:
		f.printf("rc.Write(runtime.Val(%s), runtime.EscapeNone)\n", value)
	case registry.WriteMarkdown:
		f.printf("rc.WriteMarkdown(%s)\n", value)
	case registry.WriteSanitized:
		f.printf("rc.WriteSanitized(%s, %q)\n", value, b.StaticArg(n, "policy"))
	}
}

func (f *funcGen) control(n *ast.Control) {
	if n.Kind == ast.ControlIf {
		code, typ := f.value(n.Cond)
		if typ == ast.TypeContent {
			f.printf("if %s != nil {\n", code)
		} else {
			f.printf("if runtime.Truthy(%s) {\n", code)
		}
		f.nodes(n.Body)
		if n.HasElse {
			f.w.WriteString("} else {\n")
			f.nodes(n.Else)
		}
		f.w.WriteString("}\n")
		return
	}

	each, _ := f.value(n.Each)
	entry := fmt.Sprintf("_e%d", f.loops)
	f.loops++
	f.printf("for _, %s := range rc.Range(%s) {\n", entry, each)

	inner := &scope{vars: make(map[string]binding), parent: f.scope}
	as := f.names.declare(n.As)
	inner.vars[n.As] = binding{goName: as, typ: ast.TypeValue}
	f.printf("%s := %s.Value\n", as, entry)
	guard := []string{as}
	if n.Index != "" {
		index := f.names.declare(n.Index)
		inner.vars[n.Index] = binding{goName: index, typ: ast.TypeValue}
		f.printf("%s := %s.Key\n", index, entry)
		guard = append(guard, index)
	}
	f.printf("%s = %s\n", strings.TrimSuffix(strings.Repeat("_, ", len(guard)), ", "), strings.Join(guard, ", "))

	outer := f.scope
	f.scope = inner
	f.nodes(n.Body)
	f.scope = outer
	f.w.WriteString("}\n")
}

// quote returns a Go string literal for s, using a raw string when that is
// both valid and more readable.
func quote(s string) string {
	if strings.ContainsAny(s, "\"\\") && !strings.ContainsAny(s, "`\r") && isPrintable(s) {
		return "`" + s + "`"
	}
	return strconv.Quote(s)
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r != '\n' && r != '\t' && !strconv.IsPrint(r) {
			return false
		}
	}
	return true
}
