// Package runtime is the rendering contract that taglet-generated code and
// the dev-mode interpreter call into.
//
// A Context carries the caller's model and the output sink. Generated tag
// functions never build strings: they perform ordered writes through
// Context.Raw (constant literal segments, emitted verbatim) and
// Context.Write (values and content blocks, escaped for the HTML context
// they are written in). The first failing write is remembered and every
// later write becomes a no-op, so generated code checks Err once.
package runtime

import (
	"context"
	"io"
)

// Model is the name to value mapping a framework adapter supplies when it
// invokes a root tag.
type Model map[string]any

// Context is the implicit first argument of every generated tag function.
type Context struct {
	ctx   context.Context
	w     io.Writer
	model Model
	err   error
}

// NewContext returns a Context writing to w. A nil model is treated as
// empty.
func NewContext(ctx context.Context, w io.Writer, model Model) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if model == nil {
		model = Model{}
	}
	return &Context{ctx: ctx, w: w, model: model}
}

// Context returns the request-scoped context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Model returns the model the context was created with.
func (c *Context) Model() Model {
	return c.model
}

// Writer returns the underlying sink.
func (c *Context) Writer() io.Writer {
	return c.w
}

// Required returns the model value for name or a *MissingParameterError.
func (c *Context) Required(name string) (any, error) {
	v, ok := c.model[name]
	if !ok {
		return nil, &MissingParameterError{Name: name}
	}
	return v, nil
}

// Optional returns the model value for name, or def when it is absent.
func (c *Context) Optional(name string, def any) any {
	if v, ok := c.model[name]; ok {
		return v
	}
	return def
}

// Raw emits a literal constant segment verbatim.
func (c *Context) Raw(text string) {
	if c.err != nil || text == "" {
		return
	}
	if _, err := io.WriteString(c.w, text); err != nil {
		c.err = err
	}
}

// Write renders v escaped for esc. Content values render their own markup
// and ignore esc.
func (c *Context) Write(v Value, esc Escape) {
	if c.err != nil {
		return
	}
	switch v.kind {
	case kindLiteral:
		c.Raw(v.text)
	case kindValue:
		c.writeValue(v.text, v.value, v.isText, esc)
	case kindContent:
		if v.content == nil {
			return
		}
		if err := v.content(c); err != nil && c.err == nil {
			c.err = err
		}
	}
}

// Fail records err as the context's error unless one is already recorded.
func (c *Context) Fail(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

// Err returns the first error recorded by a write, an evaluation or Fail.
func (c *Context) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.ctx.Err()
}
