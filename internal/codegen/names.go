package codegen

import (
	"go/token"

	"github.com/conneroisu/taglet/internal/registry"
)

// predeclared lists Go's universe-scope identifiers plus the names
// generated code uses itself.
var predeclared = map[string]bool{
	"any": true, "bool": true, "byte": true, "comparable": true,
	"complex64": true, "complex128": true, "error": true,
	"float32": true, "float64": true, "int": true, "int8": true,
	"int16": true, "int32": true, "int64": true, "rune": true,
	"string": true, "uint": true, "uint8": true, "uint16": true,
	"uint32": true, "uint64": true, "uintptr": true,
	"true": true, "false": true, "iota": true, "nil": true,
	"append": true, "cap": true, "clear": true, "close": true,
	"complex": true, "copy": true, "delete": true, "imag": true,
	"len": true, "make": true, "max": true, "min": true, "new": true,
	"panic": true, "print": true, "println": true, "real": true,
	"recover": true,

	"rc": true, "runtime": true, "err": true, "r": true,
}

// namer allocates Go identifiers for template names within one function.
// Go keywords, predeclared names, generated tag functions and names with a
// leading underscore (reserved for generated temporaries) get a trailing
// underscore; collisions get more.
type namer struct {
	reg  *registry.Registry
	used map[string]bool
}

func newNamer(reg *registry.Registry) *namer {
	return &namer{reg: reg, used: make(map[string]bool)}
}

func (n *namer) declare(name string) string {
	id := name
	if n.reserved(id) {
		id += "_"
	}
	for n.used[id] {
		id += "_"
	}
	n.used[id] = true
	return id
}

func (n *namer) reserved(id string) bool {
	if token.IsKeyword(id) || predeclared[id] || id[0] == '_' {
		return true
	}
	if id == registry.ReservedName {
		return true
	}
	for _, name := range n.reg.Names() {
		if registry.GoName(name) == id {
			return true
		}
	}
	return false
}
