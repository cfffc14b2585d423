// Package infer derives the formal parameter list of every tag from its
// declarations, the names its body reads and the way call sites bind
// them.
package infer

import (
	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/pkg/runtime"
)

// Param is an inferred formal parameter.
type Param struct {
	Name     string
	Type     ast.ParamType
	Required bool
	// Default is the default expression of an optional parameter.
	Default *ast.Expr
	// Explicit is set when a <t:param> declared the type.
	Explicit bool
	Pos      ast.Pos
}

// Kind converts the parameter type to its runtime counterpart.
func (p *Param) Kind() runtime.ParamKind {
	switch p.Type {
	case ast.TypeContent:
		return runtime.ParamContent
	case ast.TypeValue:
		return runtime.ParamValue
	default:
		return runtime.ParamText
	}
}

// Signature is the ordered parameter list of one tag. The order is part of
// the generated function's signature: declarations first, then names in
// the order the body first reads them.
type Signature struct {
	Tag    string
	Params []*Param
	index  map[string]*Param
}

func newSignature(tag string) *Signature {
	return &Signature{Tag: tag, index: make(map[string]*Param)}
}

// Param returns the parameter named name.
func (s *Signature) Param(name string) (*Param, bool) {
	p, ok := s.index[name]
	return p, ok
}

// Names returns the parameter names in signature order.
func (s *Signature) Names() []string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}
	return names
}

// RuntimeParams describes the signature for a runtime registry entry.
func (s *Signature) RuntimeParams() []runtime.Param {
	out := make([]runtime.Param, len(s.Params))
	for i, p := range s.Params {
		out[i] = runtime.Param{Name: p.Name, Kind: p.Kind(), Required: p.Required}
		if p.Default != nil {
			out[i].Default = p.Default.Source
		}
	}
	return out
}

func (s *Signature) add(p *Param) {
	s.Params = append(s.Params, p)
	s.index[p.Name] = p
}

// Signatures maps tag names to their inferred signatures.
type Signatures map[string]*Signature
