package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/errors"
	"github.com/conneroisu/taglet/internal/registry"
	"github.com/conneroisu/taglet/internal/testutils"
)

func build(t *testing.T, files map[string]string) (*registry.Registry, errors.List) {
	t.Helper()
	return registry.Build(testutils.ParseTemplates(t, files))
}

func TestBuildRegistersEveryTag(t *testing.T) {
	reg, errs := build(t, map[string]string{
		"components":    `<t:def name="Card"><div>{title}</div></t:def><t:def name="Button"><button>{text}</button></t:def>`,
		"users/profile": `<main><Card title="x"/><Button text="go"/></main>`,
	})
	require.Empty(t, errs)

	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, []string{"Button", "Card", "users.profile"}, reg.Names())

	def, ok := reg.Lookup("users.profile")
	require.True(t, ok)
	assert.True(t, def.Root)
	assert.Equal(t, "users/profile.html", def.File)

	_, ok = reg.Lookup("components")
	assert.False(t, ok, "a file with only definitions has no root tag")

	assert.Equal(t, []string{"Button", "Card"}, reg.Calls("users.profile"))
	assert.Empty(t, reg.Calls("Card"))

	require.Len(t, reg.Templates(), 2)
	assert.Equal(t, "components", reg.Templates()[0].Path)
}

func TestBuildDuplicateTag(t *testing.T) {
	reg, errs := build(t, map[string]string{
		"b": `<t:def name="Card"><section/></t:def>`,
		"a": `<t:def name="Card"><div/></t:def>`,
	})

	require.Len(t, errs, 1)
	ce := errs[0]
	assert.Equal(t, errors.KindResolution, ce.Kind)
	assert.Equal(t, errors.SeverityError, ce.Severity)
	assert.Equal(t, "b.html", ce.File, "the later file in path order is reported")
	assert.Equal(t, 1, ce.Line)
	assert.Equal(t, 1, ce.Column)
	assert.Contains(t, ce.Message, `duplicate tag "Card"`)
	assert.Contains(t, ce.Message, "a.html:1:1")

	def, ok := reg.Lookup("Card")
	require.True(t, ok)
	assert.Equal(t, "a.html", def.File, "the first declaration is kept")
}

func TestBuildUnknownTagSuggestions(t *testing.T) {
	_, errs := build(t, map[string]string{
		"page": `<t:def name="Card">c</t:def><main><Crad/></main>`,
	})

	require.Len(t, errs, 1)
	ce := errs[0]
	assert.Equal(t, errors.KindResolution, ce.Kind)
	assert.Equal(t, `unknown tag "Crad"`, ce.Message)
	assert.Equal(t, 1, ce.Line)
	assert.Equal(t, 35, ce.Column)
	assert.Contains(t, ce.Suggestions, "Card")
}

func TestBuildUnknownBuiltin(t *testing.T) {
	_, errs := build(t, map[string]string{
		"page": `<t:rwa value={html}/>`,
	})

	require.Len(t, errs, 1)
	assert.Equal(t, "unknown built-in <t:rwa>", errs[0].Message)
	assert.Equal(t, []string{"t:raw"}, errs[0].Suggestions)
}

func TestBuildGoNameClash(t *testing.T) {
	_, errs := build(t, map[string]string{
		"a/b": `<p>root</p>`,
		"c":   `<t:def name="AB">x</t:def>`,
	})

	require.Len(t, errs, 1)
	assert.Equal(t, "c.html", errs[0].File)
	assert.Equal(t, `tags "a.b" and "AB" both map to the Go identifier AB`, errs[0].Message)
}

func TestBuildReservedName(t *testing.T) {
	_, errs := build(t, map[string]string{
		"r": `<t:def name="Registry">x</t:def>`,
	})

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "reserved")
}

func TestBuildRecursion(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		warning string
	}{
		{
			name:    "direct",
			src:     `<t:def name="Loop"><div><Loop/></div></t:def>`,
			warning: "Loop -> Loop",
		},
		{
			name:    "mutual",
			src:     `<t:def name="A"><B/></t:def><t:def name="B"><A/></t:def>`,
			warning: "A -> B -> A",
		},
		{
			name: "guarded by t:if",
			src: `<t:def name="Tree"><t:param name="node" type="value"/>` +
				`<t:if cond={node.next != nil}><Tree node={node.next}/></t:if></t:def>`,
		},
		{
			name: "guarded by t:for",
			src: `<t:def name="Menu"><t:param name="items" type="value"/>` +
				`<ul><t:for each={items} as="it"><Menu items={it.children}/></t:for></ul></t:def>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := build(t, map[string]string{"r": tt.src})
			assert.False(t, errs.HasErrors())

			if tt.warning == "" {
				assert.Empty(t, errs.Warnings())
				return
			}
			require.Len(t, errs.Warnings(), 1)
			assert.Contains(t, errs[0].Message, "recurses without a conditional base case")
			assert.Contains(t, errs[0].Message, tt.warning)
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	files := map[string]string{
		"x": `<t:def name="X"><Y/><Z/></t:def>`,
		"y": `<t:def name="Y"><Q/></t:def>`,
		"z": `<t:def name="Z"><X/></t:def>`,
	}
	_, first := build(t, files)
	for i := 0; i < 10; i++ {
		_, again := build(t, files)
		assert.Equal(t, first, again)
	}
}

func TestWalkGuarded(t *testing.T) {
	tmpl := testutils.ParseTemplates(t, map[string]string{
		"w": `<A/><t:if cond={ok}><B/></t:if><C>` + `<D/></C><E title="{x}"/>`,
	})[0]

	guarded := make(map[string]bool)
	registry.Walk(tmpl.Defs[0].Body, func(n ast.Node, g bool) {
		if inv, ok := n.(*ast.Invocation); ok {
			guarded[inv.Name] = g
		}
	})

	assert.Equal(t, map[string]bool{
		"A": false,
		"B": true,
		"C": false,
		"D": true,
		"E": false,
	}, guarded)
}

func TestGoName(t *testing.T) {
	tests := map[string]string{
		"Card":            "Card",
		"users.profile":   "UsersProfile",
		"admin.user_list": "AdminUserList",
		"a.b":             "AB",
	}
	for in, want := range tests {
		assert.Equal(t, want, registry.GoName(in), in)
	}
	assert.Regexp(t, `^Tag`, registry.GoName("2024.report"))
}

func TestBuiltins(t *testing.T) {
	assert.Equal(t, []string{"t:markdown", "t:raw", "t:sanitize"}, registry.BuiltinNames())

	b, ok := registry.LookupBuiltin("t:sanitize")
	require.True(t, ok)
	assert.Equal(t, registry.WriteSanitized, b.Write)

	policy, ok := b.Param("policy")
	require.True(t, ok)
	assert.True(t, policy.Static)
	assert.Equal(t, "ugc", policy.Default)

	_, ok = registry.LookupBuiltin("t:if")
	assert.False(t, ok, "control elements are not output built-ins")
}
