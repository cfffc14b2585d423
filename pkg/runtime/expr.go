package runtime

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cast"
)

// Env binds the free names of an expression to values.
type Env map[string]any

// Program is a compiled interpolation, condition or default expression.
type Program struct {
	source  string
	program *vm.Program
}

// Compile compiles an expr-lang expression. Names are resolved at
// evaluation time from the Env.
func Compile(source string) (*Program, error) {
	p, err := expr.Compile(source)
	if err != nil {
		return nil, err
	}
	return &Program{source: source, program: p}, nil
}

// MustCompile is like Compile but panics on error. Generated code uses it
// for package-level programs whose sources were validated at compile time.
func MustCompile(source string) *Program {
	p, err := Compile(source)
	if err != nil {
		panic(fmt.Sprintf("taglet: compiling %q: %v", source, err))
	}
	return p
}

// Source returns the expression source.
func (p *Program) Source() string {
	return p.source
}

// Eval runs p against env. On failure the error is recorded on the context
// and nil is returned.
func (c *Context) Eval(p *Program, env Env) any {
	if c.err != nil {
		return nil
	}
	if env == nil {
		env = Env{}
	}
	out, err := expr.Run(p.program, map[string]any(env))
	if err != nil {
		c.Fail(&EvalError{Expr: p.source, Err: err})
		return nil
	}
	return out
}

// Truthy reports whether v counts as true in a t:if condition: nil, false,
// zero numbers, empty strings and empty collections are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// Entry is one iteration of a t:for loop. Key is the index for slices and
// integers and the map key for maps.
type Entry struct {
	Key   any
	Value any
}

// Range expands v into loop entries. Maps iterate in key order so output
// is deterministic. Values that cannot be iterated record an error.
func (c *Context) Range(v any) []Entry {
	if c.err != nil || v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]Entry, rv.Len())
		for i := range out {
			out[i] = Entry{Key: i, Value: rv.Index(i).Interface()}
		}
		return out
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return cast.ToString(keys[i].Interface()) < cast.ToString(keys[j].Interface())
		})
		out := make([]Entry, len(keys))
		for i, k := range keys {
			out[i] = Entry{Key: k.Interface(), Value: rv.MapIndex(k).Interface()}
		}
		return out
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := int(rv.Int())
		out := make([]Entry, 0, max(n, 0))
		for i := 0; i < n; i++ {
			out = append(out, Entry{Key: i, Value: i})
		}
		return out
	}
	c.Fail(&ValueError{Value: v, Err: fmt.Errorf("cannot range over %T", v)})
	return nil
}
