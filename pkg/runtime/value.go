package runtime

import (
	"github.com/a-h/templ"
	"github.com/spf13/cast"
)

type valueKind uint8

const (
	kindLiteral valueKind = iota
	kindValue
	kindContent
)

// Value is the closed set of things a sink accepts: a literal constant
// segment, a scalar value, or a content block.
type Value struct {
	kind    valueKind
	isText  bool
	text    string
	value   any
	content Content
}

// Literal wraps a constant segment that is emitted without escaping.
func Literal(text string) Value {
	return Value{kind: kindLiteral, text: text}
}

// Text wraps a text value; it is escaped when written.
func Text(s string) Value {
	return Value{kind: kindValue, isText: true, text: s}
}

// Val wraps an arbitrary value; it is converted to text and escaped when
// written. Content, func(*Context) error and templ.Component values render
// as content blocks.
func Val(v any) Value {
	return Value{kind: kindValue, value: v}
}

// Block wraps a content block.
func Block(c Content) Value {
	return Value{kind: kindContent, content: c}
}

// Content is a renderable block of markup, typically the body an
// invocation passes to a content parameter.
type Content func(rc *Context) error

// AsContent converts a model value into Content. Strings and other scalars
// render escaped; nil renders nothing.
func AsContent(v any) Content {
	switch t := v.(type) {
	case nil:
		return nil
	case Content:
		return t
	case func(*Context) error:
		return Content(t)
	case templ.Component:
		return func(rc *Context) error {
			return t.Render(rc.Context(), rc.Writer())
		}
	default:
		return func(rc *Context) error {
			rc.Write(Val(t), EscapeHTML)
			return nil
		}
	}
}

// Escape selects how a value is escaped for the HTML context it is written
// in.
type Escape uint8

const (
	// EscapeHTML escapes for element text.
	EscapeHTML Escape = iota
	// EscapeAttr escapes for a quoted attribute value.
	EscapeAttr
	// EscapeURL sanitises the scheme and escapes for a URL attribute.
	EscapeURL
	// EscapeNone writes the value verbatim. Only t:raw produces it.
	EscapeNone
)

// String returns the string representation of the escape mode
func (e Escape) String() string {
	switch e {
	case EscapeHTML:
		return "html"
	case EscapeAttr:
		return "attr"
	case EscapeURL:
		return "url"
	case EscapeNone:
		return "none"
	default:
		return "unknown"
	}
}

func (c *Context) writeValue(text string, value any, isText bool, esc Escape) {
	if !isText {
		switch t := value.(type) {
		case nil:
			return
		case Content, func(*Context) error, templ.Component:
			c.Write(Block(AsContent(t)), esc)
			return
		}
		s, err := cast.ToStringE(value)
		if err != nil {
			c.Fail(&ValueError{Value: value, Err: err})
			return
		}
		text = s
	}
	c.Raw(escape(text, esc))
}

func escape(s string, esc Escape) string {
	switch esc {
	case EscapeNone:
		return s
	case EscapeURL:
		return templ.EscapeString(string(templ.URL(s)))
	default:
		return templ.EscapeString(s)
	}
}

// ToText converts v to its text form the same way Write does.
func ToText(v any) string {
	return cast.ToString(v)
}
