package runtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteEscaping(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		esc  Escape
		want string
	}{
		{"text in element", Text(`<a href="x">&`), EscapeHTML, "&lt;a href=&#34;x&#34;&gt;&amp;"},
		{"text in attribute", Text(`"quoted" 'single'`), EscapeAttr, "&#34;quoted&#34; &#39;single&#39;"},
		{"safe url", Text("/users?id=1&x=2"), EscapeURL, "/users?id=1&amp;x=2"},
		{"unsafe url", Text("javascript:alert(1)"), EscapeURL, "about:invalid#TemplFailedSanitizationURL"},
		{"literal", Literal("<b>bold</b>"), EscapeHTML, "<b>bold</b>"},
		{"raw value", Val("<i>x</i>"), EscapeNone, "<i>x</i>"},
		{"integer", Val(42), EscapeHTML, "42"},
		{"float", Val(1.5), EscapeHTML, "1.5"},
		{"nil", Val(nil), EscapeHTML, ""},
		{"content block", Block(func(rc *Context) error { rc.Raw("<hr>"); return nil }), EscapeAttr, "<hr>"},
		{"nil block", Block(nil), EscapeHTML, ""},
		{"content value", Val(Content(func(rc *Context) error { rc.Raw("<br>"); return nil })), EscapeHTML, "<br>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			rc := NewContext(context.Background(), &buf, nil)
			rc.Write(tt.v, tt.esc)
			require.NoError(t, rc.Err())
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

type failingWriter struct {
	calls int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.calls++
	return 0, io.ErrClosedPipe
}

func TestContextStopsAfterFirstError(t *testing.T) {
	w := &failingWriter{}
	rc := NewContext(context.Background(), w, nil)

	rc.Raw("a")
	rc.Write(Text("b"), EscapeHTML)
	rc.Fail(errors.New("later"))

	assert.ErrorIs(t, rc.Err(), io.ErrClosedPipe)
	assert.Equal(t, 1, w.calls)
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc := NewContext(ctx, io.Discard, nil)
	require.NoError(t, rc.Err())

	cancel()
	assert.ErrorIs(t, rc.Err(), context.Canceled)
}

func TestValueWriteFailure(t *testing.T) {
	var buf bytes.Buffer
	rc := NewContext(context.Background(), &buf, nil)
	rc.Write(Val(struct{ A int }{1}), EscapeHTML)

	var ve *ValueError
	assert.True(t, errors.As(rc.Err(), &ve))
}

func TestBindings(t *testing.T) {
	rc := NewContext(context.Background(), io.Discard, Model{
		"name":  "Ada",
		"count": 3,
		"obj":   struct{}{},
		"body":  "<p>",
	})

	s, err := RequiredText(rc, "count")
	require.NoError(t, err)
	assert.Equal(t, "3", s)

	_, err = RequiredText(rc, "missing")
	var missing *MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "missing", missing.Name)

	_, err = RequiredText(rc, "obj")
	var typeErr *ParameterTypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, ParamText, typeErr.Want)

	s, err = OptionalText(rc, "title", func() string { return "untitled" })
	require.NoError(t, err)
	assert.Equal(t, "untitled", s)

	v := OptionalValue(rc, "count", func() any { return 0 })
	assert.Equal(t, 3, v)

	c, err := RequiredContent(rc, "body")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, c(NewContext(context.Background(), &buf, nil)))
	assert.Equal(t, "&lt;p&gt;", buf.String(), "scalar content renders escaped")

	assert.Nil(t, OptionalContent(rc, "none", func() Content { return nil }))
}

func TestEval(t *testing.T) {
	rc := NewContext(context.Background(), io.Discard, nil)

	p := MustCompile("user.name + '!'")
	assert.Equal(t, "user.name + '!'", p.Source())
	assert.Equal(t, "Ada!", rc.Eval(p, Env{"user": map[string]any{"name": "Ada"}}))

	bad := MustCompile("items[3]")
	assert.Nil(t, rc.Eval(bad, Env{"items": []int{1}}))
	var evalErr *EvalError
	require.True(t, errors.As(rc.Err(), &evalErr))
	assert.Equal(t, "items[3]", evalErr.Expr)

	_, err := Compile("a +")
	assert.Error(t, err)
	assert.Panics(t, func() { MustCompile("a +") })
}

func TestTruthy(t *testing.T) {
	falsy := []any{nil, false, "", 0, int64(0), uint(0), 0.0, []int{}, map[string]int{}, (*int)(nil)}
	for _, v := range falsy {
		assert.False(t, Truthy(v), "%#v", v)
	}
	n := 1
	truthy := []any{true, "x", 1, -1, 0.5, []int{0}, map[string]int{"a": 0}, &n, struct{}{}}
	for _, v := range truthy {
		assert.True(t, Truthy(v), "%#v", v)
	}
}

func TestRange(t *testing.T) {
	rc := NewContext(context.Background(), io.Discard, nil)

	assert.Equal(t, []Entry{{0, "a"}, {1, "b"}}, rc.Range([]string{"a", "b"}))
	assert.Equal(t, []Entry{{"a", 1}, {"b", 2}}, rc.Range(map[string]int{"b": 2, "a": 1}), "maps iterate in key order")
	assert.Equal(t, []Entry{{0, 0}, {1, 1}, {2, 2}}, rc.Range(3))
	assert.Nil(t, rc.Range(nil))
	require.NoError(t, rc.Err())

	assert.Nil(t, rc.Range("text"))
	var ve *ValueError
	assert.True(t, errors.As(rc.Err(), &ve))
}

func TestBuiltins(t *testing.T) {
	var buf bytes.Buffer
	rc := NewContext(context.Background(), &buf, nil)

	rc.WriteMarkdown("*hi*")
	rc.WriteSanitized(`<a href="/x" onclick="evil()">x</a>`, PolicyUGC)
	rc.WriteSanitized("<b>y</b>", PolicyStrict)
	require.NoError(t, rc.Err())
	assert.Equal(t, "<p><em>hi</em></p>\n"+`<a href="/x" rel="nofollow">x</a>`+"y", buf.String())

	rc.WriteSanitized("z", "loose")
	assert.ErrorContains(t, rc.Err(), `unknown sanitize policy "loose"`)

	assert.True(t, IsPolicy(PolicyUGC))
	assert.False(t, IsPolicy("loose"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Add("b", nil, func(rc *Context) error {
		rc.Raw("b")
		return nil
	})
	r.Add("a", []Param{{Name: "x", Kind: ParamText, Required: true}}, func(rc *Context) error {
		x, err := RequiredText(rc, "x")
		if err != nil {
			return err
		}
		rc.Write(Text(x), EscapeHTML)
		return nil
	})

	assert.Equal(t, []string{"a", "b"}, r.Names())
	assert.Equal(t, 2, r.Len())
	assert.False(t, r.IsFallback())

	var buf bytes.Buffer
	require.NoError(t, r.Render(context.Background(), &buf, "a", Model{"x": "<>"}))
	assert.Equal(t, "&lt;&gt;", buf.String())

	err := r.Render(context.Background(), &buf, "a", nil)
	var missing *MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, `tag a: missing required parameter "x"`, err.Error())

	err = r.Render(context.Background(), &buf, "zzz", nil)
	assert.EqualError(t, err, `unknown tag "zzz"`)
}

func TestFallbackRegistry(t *testing.T) {
	r := NewFallbackRegistry(func(rc *Context) error {
		rc.Raw("broken")
		return nil
	})
	assert.True(t, r.IsFallback())

	var buf bytes.Buffer
	require.NoError(t, r.Render(context.Background(), &buf, "anything", nil))
	assert.Equal(t, "broken", buf.String())
}

func TestComponentInterop(t *testing.T) {
	inner := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<em>templ</em>")
		return err
	})

	r := NewRegistry()
	r.Add("wrap", nil, func(rc *Context) error {
		rc.Raw("<div>")
		rc.Write(Val(inner), EscapeHTML)
		rc.Raw("</div>")
		return nil
	})

	var buf bytes.Buffer
	require.NoError(t, r.Component("wrap", nil).Render(context.Background(), &buf))
	assert.Equal(t, "<div><em>templ</em></div>", buf.String())
}
