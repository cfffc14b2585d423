// Package ast defines the template syntax tree produced by the parser.
//
// Trees are immutable once the parser returns them. Later stages keep
// their results (inferred signatures, escape contexts) in side tables keyed
// by tag name or node pointer, so a cached Template can be shared between
// compilation passes.
package ast

import (
	"strconv"
	"strings"
)

// Pos is a 1-based line and column (in runes).
type Pos struct {
	Line   int
	Column int
}

// Before reports whether p comes before q in the source.
func (p Pos) Before(q Pos) bool {
	return p.Line < q.Line || p.Line == q.Line && p.Column < q.Column
}

// String returns "line:column".
func (p Pos) String() string {
	return strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Column)
}

// Template is one parsed template file.
type Template struct {
	// Path is the logical path, e.g. "users/profile".
	Path string
	// File is the source file path used in diagnostics.
	File string
	// Defs holds the root tag (if any) followed by named tags in
	// declaration order.
	Defs []*TagDef
}

// RootName returns the tag name of the file's root tag: the logical path
// with "/" replaced by ".".
func RootName(logicalPath string) string {
	return strings.ReplaceAll(logicalPath, "/", ".")
}

// TagDef is a tag definition.
type TagDef struct {
	Name  string
	Root  bool
	Pos   Pos
	Decls []*ParamDecl
	Body  []Node
	// File is the declaring template's file, for diagnostics.
	File string
	// Template is the declaring template's logical path.
	Template string
}

// ParamType is the declared or inferred type of a parameter.
type ParamType int

const (
	TypeUnknown ParamType = iota
	TypeText
	TypeContent
	TypeValue
)

// String returns the string representation of the parameter type
func (t ParamType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeContent:
		return "content"
	case TypeValue:
		return "value"
	default:
		return "unknown"
	}
}

// ParseParamType converts a type attribute value. ok is false for unknown
// names.
func ParseParamType(s string) (ParamType, bool) {
	switch s {
	case "text":
		return TypeText, true
	case "content":
		return TypeContent, true
	case "value":
		return TypeValue, true
	}
	return TypeUnknown, false
}

// ParamDecl is an explicit <t:param> declaration.
type ParamDecl struct {
	Pos     Pos
	Name    string
	Type    ParamType
	Default *Expr
}

// Node is one of *Literal, *Interpolation, *Invocation or *Control.
type Node interface {
	Position() Pos
	node()
}

// Literal is a run of verbatim text.
type Literal struct {
	Pos  Pos
	Text string
}

// Interpolation writes the value of an expression.
type Interpolation struct {
	Pos  Pos
	Expr *Expr
}

// Invocation calls a user-defined tag or a built-in output primitive.
type Invocation struct {
	Pos  Pos
	Name string
	Args []*Arg
}

// ControlKind distinguishes conditionals from loops.
type ControlKind int

const (
	ControlIf ControlKind = iota
	ControlFor
)

// String returns the element name of the control kind.
func (k ControlKind) String() string {
	if k == ControlFor {
		return "t:for"
	}
	return "t:if"
}

// Control is a conditional or loop over a nested node sequence.
type Control struct {
	Pos  Pos
	Kind ControlKind
	// Cond is the t:if condition.
	Cond *Expr
	// Each is the t:for collection; As and Index name the loop variables.
	Each  *Expr
	As    string
	Index string
	Body  []Node
	// Else is the t:else branch of a conditional; HasElse distinguishes an
	// empty branch from none.
	Else    []Node
	HasElse bool
}

func (n *Literal) Position() Pos       { return n.Pos }
func (n *Interpolation) Position() Pos { return n.Pos }
func (n *Invocation) Position() Pos    { return n.Pos }
func (n *Control) Position() Pos       { return n.Pos }

func (*Literal) node()       {}
func (*Interpolation) node() {}
func (*Invocation) node()    {}
func (*Control) node()       {}

// ArgKind is how an invocation binds an argument.
type ArgKind int

const (
	// ArgText is a quoted attribute: literal text with interpolations.
	ArgText ArgKind = iota
	// ArgExpr is an attribute written as {expr}, or a bare boolean
	// attribute.
	ArgExpr
	// ArgContent is a body: a <t:slot> or the implicit content children.
	ArgContent
)

// String returns the string representation of the argument kind
func (k ArgKind) String() string {
	switch k {
	case ArgText:
		return "text"
	case ArgExpr:
		return "expression"
	case ArgContent:
		return "content"
	default:
		return "unknown"
	}
}

// ContentArg is the argument name the non-slot children of an invocation
// bind to.
const ContentArg = "content"

// Arg is one argument binding of an invocation.
type Arg struct {
	Pos  Pos
	Name string
	Kind ArgKind
	// Parts holds *Literal and *Interpolation nodes of an ArgText binding.
	Parts []Node
	// Expr is the expression of an ArgExpr binding.
	Expr *Expr
	// Body is the node sequence of an ArgContent binding.
	Body []Node
}

// Arg returns the argument bound to name, or nil.
func (n *Invocation) Arg(name string) *Arg {
	for _, a := range n.Args {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// IsBuiltin reports whether the invocation names a t: primitive.
func (n *Invocation) IsBuiltin() bool {
	return strings.HasPrefix(n.Name, BuiltinPrefix)
}

// BuiltinPrefix is the namespace of built-in elements.
const BuiltinPrefix = "t:"

// StaticText returns the text of an ArgText binding that has no
// interpolations.
func (a *Arg) StaticText() (string, bool) {
	if a.Kind != ArgText {
		return "", false
	}
	var b strings.Builder
	for _, p := range a.Parts {
		lit, ok := p.(*Literal)
		if !ok {
			return "", false
		}
		b.WriteString(lit.Text)
	}
	return b.String(), true
}
