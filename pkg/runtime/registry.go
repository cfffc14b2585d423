package runtime

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/a-h/templ"
	"github.com/spf13/cast"
)

// ParamKind is the inferred type of a tag parameter.
type ParamKind int

const (
	ParamText ParamKind = iota
	ParamContent
	ParamValue
)

// String returns the string representation of the parameter kind
func (k ParamKind) String() string {
	switch k {
	case ParamText:
		return "text"
	case ParamContent:
		return "content"
	case ParamValue:
		return "value"
	default:
		return "unknown"
	}
}

// Param describes one formal parameter of a tag.
type Param struct {
	Name     string
	Kind     ParamKind
	Required bool
	Default  string
}

// TagFunc renders a tag, binding its parameters from the context's model.
type TagFunc func(rc *Context) error

// Tag is a registry entry.
type Tag struct {
	Name   string
	Params []Param
	Render TagFunc
}

// Registry maps tag names to their rendering functions. It is populated
// once while being built and read-only afterwards, so concurrent lookups
// need no locking.
type Registry struct {
	tags     map[string]*Tag
	names    []string
	fallback TagFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tags: make(map[string]*Tag)}
}

// NewFallbackRegistry creates a registry that answers every lookup with
// render. Dev mode uses it to serve diagnostics when no compilation has
// succeeded.
func NewFallbackRegistry(render TagFunc) *Registry {
	return &Registry{tags: make(map[string]*Tag), fallback: render}
}

// Add registers a tag. It must not be called once the registry is shared.
func (r *Registry) Add(name string, params []Param, render TagFunc) {
	if _, exists := r.tags[name]; !exists {
		r.names = append(r.names, name)
		sort.Strings(r.names)
	}
	r.tags[name] = &Tag{Name: name, Params: params, Render: render}
}

// Lookup returns the tag registered under name. A fallback registry
// returns its fallback for every name.
func (r *Registry) Lookup(name string) (*Tag, bool) {
	if r.fallback != nil {
		return &Tag{Name: name, Render: r.fallback}, true
	}
	t, ok := r.tags[name]
	return t, ok
}

// IsFallback reports whether r is a fallback registry.
func (r *Registry) IsFallback() bool {
	return r.fallback != nil
}

// Names returns the registered tag names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered tags.
func (r *Registry) Len() int {
	return len(r.tags)
}

// Render invokes the named tag with model and writes its output to w.
func (r *Registry) Render(ctx context.Context, w io.Writer, name string, model Model) error {
	t, ok := r.Lookup(name)
	if !ok {
		return &UnknownTagError{Name: name}
	}
	rc := NewContext(ctx, w, model)
	err := t.Render(rc)
	if err == nil {
		err = rc.Err()
	}
	var missing *MissingParameterError
	if errors.As(err, &missing) && missing.Tag == "" {
		missing.Tag = name
	}
	return err
}

// Component exposes the named tag as a templ.Component.
func (r *Registry) Component(name string, model Model) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return r.Render(ctx, w, name, model)
	})
}

// RequiredText binds a required text parameter from the model.
func RequiredText(rc *Context, name string) (string, error) {
	v, err := rc.Required(name)
	if err != nil {
		return "", err
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", &ParameterTypeError{Name: name, Want: ParamText, Err: err}
	}
	return s, nil
}

// OptionalText binds an optional text parameter, calling def when the
// model omits it.
func OptionalText(rc *Context, name string, def func() string) (string, error) {
	if _, ok := rc.model[name]; !ok {
		return def(), nil
	}
	return RequiredText(rc, name)
}

// RequiredValue binds a required value parameter from the model.
func RequiredValue(rc *Context, name string) (any, error) {
	return rc.Required(name)
}

// OptionalValue binds an optional value parameter, calling def when the
// model omits it.
func OptionalValue(rc *Context, name string, def func() any) any {
	if v, ok := rc.model[name]; ok {
		return v
	}
	return def()
}

// RequiredContent binds a required content parameter from the model.
func RequiredContent(rc *Context, name string) (Content, error) {
	v, err := rc.Required(name)
	if err != nil {
		return nil, err
	}
	return AsContent(v), nil
}

// OptionalContent binds an optional content parameter, calling def when
// the model omits it.
func OptionalContent(rc *Context, name string, def func() Content) Content {
	if v, ok := rc.model[name]; ok {
		return AsContent(v)
	}
	return def()
}

// TextContent wraps a value as content that renders it escaped. Defaults
// of content parameters use it.
func TextContent(v any) Content {
	return AsContent(v)
}
