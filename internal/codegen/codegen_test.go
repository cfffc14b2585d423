package codegen_test

import (
	"fmt"
	goast "go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"

	"github.com/conneroisu/taglet/internal/codegen"
	"github.com/conneroisu/taglet/internal/testutils"
)

const button = `<t:def name="Button"><button onclick="{onClick}">{text}</button></t:def>`

func generateFiles(t *testing.T, files map[string]string) []codegen.File {
	t.Helper()
	p := testutils.MustAnalyze(t, files)
	out, errs := codegen.Generate(p.Registry, p.Signatures, p.Escapes, codegen.Options{Package: "views", SourceExt: ".html"})
	require.Empty(t, errs)
	return out
}

func generate(t *testing.T, files map[string]string) map[string]string {
	t.Helper()
	out := generateFiles(t, files)

	srcs := make(map[string]string, len(out))
	fset := token.NewFileSet()
	for _, f := range out {
		_, err := parser.ParseFile(fset, f.Name, f.Source, parser.AllErrors)
		require.NoError(t, err, "generated %s does not parse:\n%s", f.Name, f.Source)
		srcs[f.Name] = string(f.Source)
	}
	return srcs
}

func TestGenerateButton(t *testing.T) {
	srcs := generate(t, map[string]string{"components/button": button})

	require.Len(t, srcs, 2)
	src, ok := srcs["components_button.taglet.go"]
	require.True(t, ok)

	assert.True(t, strings.HasPrefix(src, "// Code generated by taglet. DO NOT EDIT.\n"))
	assert.Contains(t, src, "// source: components/button.html")
	assert.Contains(t, src, "package views")
	assert.Contains(t, src, `import "github.com/conneroisu/taglet/pkg/runtime"`)
	assert.Contains(t, src, "func Button(rc *runtime.Context, onClick string, text string) error {\n"+
		"\trc.Raw(`<button onclick=\"`)\n"+
		"\trc.Write(runtime.Text(onClick), runtime.EscapeAttr)\n"+
		"\trc.Raw(`\">`)\n"+
		"\trc.Write(runtime.Text(text), runtime.EscapeHTML)\n"+
		"\trc.Raw(\"</button>\")\n"+
		"\treturn rc.Err()\n"+
		"}\n")
}

func TestGenerateLiteralOnly(t *testing.T) {
	srcs := generate(t, map[string]string{"static": "<p>Hello,\n\tworld</p>\n"})

	src := srcs["static.taglet.go"]
	assert.Equal(t, 1, strings.Count(src, "rc.Raw("), "adjacent literals are coalesced")
	assert.Contains(t, src, `rc.Raw("<p>Hello,\n\tworld</p>\n")`)
	assert.Contains(t, src, "func Static(rc *runtime.Context) error {")
	assert.Contains(t, src, "// Static renders the template static.")
}

func TestGenerateInvocation(t *testing.T) {
	srcs := generate(t, map[string]string{
		"button": button,
		"card":   `<t:def name="Card"><div>{content}</div></t:def>`,
		"page":   `<Card><Button onClick="go({id})" text={label}/></Card>`,
	})

	src := srcs["page.taglet.go"]
	assert.Contains(t, src, "func Page(rc *runtime.Context, id string, label string) error {")
	assert.Contains(t, src, "if err := Card(rc, func(rc *runtime.Context) error {")
	assert.Regexp(t, `if err := Button\(rc, "go\(" ?\+ ?id ?\+ ?"\)", label\); err != nil \{`, src)
	assert.Contains(t, srcs["card.taglet.go"], "rc.Write(runtime.Block(content), runtime.EscapeHTML)")
}

func TestGenerateExpressions(t *testing.T) {
	srcs := generate(t, map[string]string{
		"c": `<t:def name="Counter"><span>{count + 1}</span>` +
			`<ul><t:for each={items} as="it" index="i"><li>{i}</li></t:for></ul>` +
			`<t:if cond={count > 0}>many<t:else>none</t:else></t:if></t:def>`,
	})

	src := srcs["c.taglet.go"]
	assert.Contains(t, src, `_c_expr0 = runtime.MustCompile("count + 1")`)
	assert.Contains(t, src, `rc.Write(runtime.Val(rc.Eval(_c_expr0, runtime.Env{"count": count})), runtime.EscapeHTML)`)
	assert.Contains(t, src, "for _, _e0 := range rc.Range(items) {")
	assert.Contains(t, src, "it := _e0.Value")
	assert.Contains(t, src, "i := _e0.Key")
	assert.Contains(t, src, `if runtime.Truthy(rc.Eval(_c_expr1, runtime.Env{"count": count})) {`)
	assert.Contains(t, src, "} else {")
}

func TestGenerateBuiltins(t *testing.T) {
	srcs := generate(t, map[string]string{
		"b": `<t:raw value={html}/><t:markdown value={md}/><t:sanitize value={user} policy="strict"/>`,
	})

	src := srcs["b.taglet.go"]
	assert.Contains(t, src, "rc.Write(runtime.Val(html), runtime.EscapeNone)")
	assert.Contains(t, src, "rc.WriteMarkdown(md)")
	assert.Contains(t, src, `rc.WriteSanitized(user, "strict")`)
}

func TestGenerateRenamesReservedIdentifiers(t *testing.T) {
	srcs := generate(t, map[string]string{
		"e": `<t:def name="E"><p>{err}{rc}{Card}</p></t:def><t:def name="Card">c</t:def>`,
	})

	assert.Contains(t, srcs["e.taglet.go"], "func E(rc *runtime.Context, err_ string, rc_ string, Card_ string) error {")
}

func TestGenerateDefaults(t *testing.T) {
	srcs := generate(t, map[string]string{
		"badge": `<t:def name="Badge"><t:param name="size" default="'md'"/><span class="{size}"></span></t:def>`,
		"page":  `<Badge/>`,
	})

	assert.Contains(t, srcs["page.taglet.go"], `if err := Badge(rc, "md"); err != nil {`)
}

func TestGenerateRegistry(t *testing.T) {
	srcs := generate(t, map[string]string{
		"button": button,
		"card":   `<t:def name="Card"><t:param name="size" default="'md'"/><div class="{size}">{content}</div></t:def>`,
		"page":   `<Card><b>x</b></Card>`,
	})

	src, ok := srcs[codegen.RegistryFile]
	require.True(t, ok)
	assert.Contains(t, src, "func Registry() *runtime.Registry {")
	assert.Contains(t, src, `r.Add("Button", []runtime.Param{{Name: "onClick", Kind: runtime.ParamText, Required: true}, {Name: "text", Kind: runtime.ParamText, Required: true}}, func(rc *runtime.Context) error {`)
	assert.Contains(t, src, `onClick, err := runtime.RequiredText(rc, "onClick")`)
	assert.Contains(t, src, "return Button(rc, onClick, text)")
	assert.Contains(t, src, `size, err := runtime.OptionalText(rc, "size", func() string {`)
	assert.Contains(t, src, `content, err := runtime.RequiredContent(rc, "content")`)
	assert.Less(t, strings.Index(src, `r.Add("Button"`), strings.Index(src, `r.Add("Card"`), "tags are registered by name")
	assert.Contains(t, src, `r.Add("page", nil, func(rc *runtime.Context) error {`)
}

func TestGenerateIsDeterministic(t *testing.T) {
	files := map[string]string{
		"button": button,
		"list":   `<t:def name="List"><ul><t:for each={items} as="it"><li>{it.name + "!"}</li><Button onClick="{it.id}" text="x"/></t:for></ul></t:def>`,
		"page":   `<List items={rows}/>`,
	}

	first := generate(t, files)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, generate(t, files))
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "users_profile.taglet.go", codegen.FileName("users/profile"))
	assert.Equal(t, "index.taglet.go", codegen.FileName("index"))
}

// runtimeTypes loads the type information of the runtime package once per
// test binary.
var runtimeTypes = sync.OnceValues(func() (*types.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes}
	pkgs, err := packages.Load(cfg, codegen.RuntimeImport)
	if err != nil {
		return nil, err
	}
	if len(pkgs) != 1 {
		return nil, fmt.Errorf("loading %s: got %d packages", codegen.RuntimeImport, len(pkgs))
	}
	if len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("loading %s: %v", codegen.RuntimeImport, pkgs[0].Errors)
	}
	return pkgs[0].Types, nil
})

type importerFunc func(path string) (*types.Package, error)

func (f importerFunc) Import(path string) (*types.Package, error) {
	return f(path)
}

// typeCheck type-checks generated files as one package against the runtime
// package.
func typeCheck(t *testing.T, files []codegen.File) {
	t.Helper()
	rt, err := runtimeTypes()
	require.NoError(t, err)

	fset := token.NewFileSet()
	parsed := make([]*goast.File, 0, len(files))
	for _, f := range files {
		pf, err := parser.ParseFile(fset, f.Name, f.Source, 0)
		require.NoError(t, err)
		parsed = append(parsed, pf)
	}

	var typeErrs []string
	conf := types.Config{
		Importer: importerFunc(func(path string) (*types.Package, error) {
			if path == codegen.RuntimeImport {
				return rt, nil
			}
			return nil, fmt.Errorf("unexpected import %q", path)
		}),
		Error: func(err error) { typeErrs = append(typeErrs, err.Error()) },
	}
	_, _ = conf.Check("views", fset, parsed, nil)
	if len(typeErrs) > 0 {
		for _, f := range files {
			t.Logf("%s:\n%s", f.Name, f.Source)
		}
	}
	require.Empty(t, typeErrs, "generated sources do not compile")
}

func TestGeneratedSourcesCompile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping type check in short mode")
	}

	typeCheck(t, generateFiles(t, map[string]string{
		"button": button,
		"card":   `<t:def name="Card"><t:param name="size" default="'md'"/><div class="{size}">{content}</div></t:def>`,
		"list":   `<t:def name="UserList"><ul><t:for each={users} as="u" index="i"><li data-i="{i}">{u.name + "!"}</li></t:for></ul></t:def>`,
		"panel":  `<t:def name="Panel"><t:if cond={count > 0}><UserList users={users}/><t:else>none</t:else></t:if></t:def>`,
		"links":  `<a href="{url}">{title}</a><t:raw value={html}/><t:markdown value={md}/><t:sanitize value={user} policy="ugc"/>`,
		"e":      `<t:def name="E"><p>{err}{rc}{Card}</p></t:def>`,
		"page": `<Card size="lg"><Button onClick="go({id})" text={label}/></Card>` +
			`<Card><b>{title}</b></Card><Panel users={rows} count={n}/>`,
	}))
}

func TestGenerateForwardedValueParameter(t *testing.T) {
	srcs := generate(t, map[string]string{
		"list": `<t:def name="UserList"><ul><t:for each={users} as="u"><li>{u}</li></t:for></ul></t:def>`,
		"page": `<t:def name="Page"><UserList users={users}/></t:def>`,
	})

	assert.Contains(t, srcs["page.taglet.go"], "func Page(rc *runtime.Context, users any) error {")
	assert.Contains(t, srcs[codegen.RegistryFile], `runtime.RequiredValue(rc, "users")`)
}
