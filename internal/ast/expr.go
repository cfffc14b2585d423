package ast

import (
	"strings"

	exprast "github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Expr is an expr-lang expression with its free names pre-extracted.
type Expr struct {
	Source string
	// Idents lists the free identifiers in first-seen order, without
	// duplicates.
	Idents []string
	// Bare is set when the expression is a single identifier.
	Bare bool
	// Literal holds the value of a constant string, number, boolean or nil
	// expression; IsLiteral distinguishes a nil literal from none.
	Literal   any
	IsLiteral bool
}

// ParseExpr parses source and extracts its free identifiers.
func ParseExpr(source string) (*Expr, error) {
	src := strings.TrimSpace(source)
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}

	e := &Expr{Source: src}
	switch n := tree.Node.(type) {
	case *exprast.IdentifierNode:
		e.Bare = true
	case *exprast.StringNode:
		e.Literal, e.IsLiteral = n.Value, true
	case *exprast.IntegerNode:
		e.Literal, e.IsLiteral = n.Value, true
	case *exprast.FloatNode:
		e.Literal, e.IsLiteral = n.Value, true
	case *exprast.BoolNode:
		e.Literal, e.IsLiteral = n.Value, true
	case *exprast.NilNode:
		e.IsLiteral = true
	}

	c := &identCollector{seen: map[string]bool{}, bound: map[string]bool{}}
	c.collect(tree.Node)
	e.Idents = c.idents
	return e, nil
}

// MustParseExpr is like ParseExpr but panics on error. It is meant for
// expressions synthesized by the compiler itself.
func MustParseExpr(source string) *Expr {
	e, err := ParseExpr(source)
	if err != nil {
		panic(err)
	}
	return e
}

// IsString reports whether the expression is a constant string.
func (e *Expr) IsString() bool {
	_, ok := e.Literal.(string)
	return e.IsLiteral && ok
}

type identCollector struct {
	idents []string
	seen   map[string]bool
	bound  map[string]bool
}

// collect walks in source order (exprast.Walk is post-order, which would
// report "b" before "a" in "a.x + b" only by accident of tree shape).
func (c *identCollector) collect(node exprast.Node) {
	switch n := node.(type) {
	case nil:
	case *exprast.IdentifierNode:
		if !c.bound[n.Value] && !strings.HasPrefix(n.Value, "$") {
			c.add(n.Value)
		}
	case *exprast.UnaryNode:
		c.collect(n.Node)
	case *exprast.BinaryNode:
		c.collect(n.Left)
		c.collect(n.Right)
	case *exprast.ChainNode:
		c.collect(n.Node)
	case *exprast.MemberNode:
		c.collect(n.Node)
		if _, ok := n.Property.(*exprast.StringNode); !ok {
			c.collect(n.Property)
		}
	case *exprast.SliceNode:
		c.collect(n.Node)
		c.collect(n.From)
		c.collect(n.To)
	case *exprast.CallNode:
		c.collect(n.Callee)
		for _, a := range n.Arguments {
			c.collect(a)
		}
	case *exprast.BuiltinNode:
		for _, a := range n.Arguments {
			c.collect(a)
		}
	case *exprast.PredicateNode:
		c.collect(n.Node)
	case *exprast.ConditionalNode:
		c.collect(n.Cond)
		c.collect(n.Exp1)
		c.collect(n.Exp2)
	case *exprast.VariableDeclaratorNode:
		c.collect(n.Value)
		was := c.bound[n.Name]
		c.bound[n.Name] = true
		c.collect(n.Expr)
		c.bound[n.Name] = was
	case *exprast.SequenceNode:
		for _, s := range n.Nodes {
			c.collect(s)
		}
	case *exprast.ArrayNode:
		for _, s := range n.Nodes {
			c.collect(s)
		}
	case *exprast.MapNode:
		for _, p := range n.Pairs {
			c.collect(p)
		}
	case *exprast.PairNode:
		if _, ok := n.Key.(*exprast.StringNode); !ok {
			c.collect(n.Key)
		}
		c.collect(n.Value)
	}
}

func (c *identCollector) add(name string) {
	if c.seen[name] {
		return
	}
	c.seen[name] = true
	c.idents = append(c.idents, name)
}
