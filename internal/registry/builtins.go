package registry

import (
	"sort"

	"github.com/conneroisu/taglet/internal/ast"
)

// Builtin describes a t: output primitive. Builtins take scalar
// arguments only.
type Builtin struct {
	Name   string
	Params []BuiltinParam
	// Write is the runtime operation the primitive performs.
	Write BuiltinWrite
}

// BuiltinParam is one argument of a builtin. Static arguments must be
// written as plain quoted text.
type BuiltinParam struct {
	Name     string
	Required bool
	Static   bool
	Default  string
}

// BuiltinWrite identifies the runtime operation behind a builtin.
type BuiltinWrite int

const (
	WriteRaw BuiltinWrite = iota
	WriteMarkdown
	WriteSanitized
)

var builtins = map[string]*Builtin{
	"t:raw": {
		Name:   "t:raw",
		Params: []BuiltinParam{{Name: "value", Required: true}},
		Write:  WriteRaw,
	},
	"t:markdown": {
		Name:   "t:markdown",
		Params: []BuiltinParam{{Name: "value", Required: true}},
		Write:  WriteMarkdown,
	},
	"t:sanitize": {
		Name: "t:sanitize",
		Params: []BuiltinParam{
			{Name: "value", Required: true},
			{Name: "policy", Static: true, Default: "ugc"},
		},
		Write: WriteSanitized,
	},
}

// LookupBuiltin returns the builtin named name, including its t: prefix.
func LookupBuiltin(name string) (*Builtin, bool) {
	b, ok := builtins[name]
	return b, ok
}

// BuiltinNames returns the builtin element names, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Param returns the parameter named name.
func (b *Builtin) Param(name string) (BuiltinParam, bool) {
	for _, p := range b.Params {
		if p.Name == name {
			return p, true
		}
	}
	return BuiltinParam{}, false
}

// StaticArg returns the static text bound to a static parameter by inv,
// or the parameter's default.
func (b *Builtin) StaticArg(inv *ast.Invocation, name string) string {
	if a := inv.Arg(name); a != nil {
		if s, ok := a.StaticText(); ok {
			return s
		}
	}
	p, _ := b.Param(name)
	return p.Default
}
