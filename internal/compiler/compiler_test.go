package compiler

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/taglet/internal/codegen"
	"github.com/conneroisu/taglet/internal/errors"
	"github.com/conneroisu/taglet/internal/scanner"
	"github.com/conneroisu/taglet/internal/testutils"
)

// sources builds in-memory source files keyed by logical path.
func sources(files map[string]string) []scanner.SourceFile {
	out := make([]scanner.SourceFile, 0, len(files))
	for p, src := range files {
		out = append(out, scanner.SourceFile{
			Path:        p + ".html",
			LogicalPath: p,
			Content:     []byte(src),
			Hash:        scanner.Hash([]byte(src)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogicalPath < out[j].LogicalPath })
	return out
}

func fileNames(files []codegen.File) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}

func TestCompileScannedProject(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	testutils.WriteTemplate(t, dir, "components/button", `<t:def name="Button"><button onclick="{onClick}">{text}</button></t:def>`)
	testutils.WriteTemplate(t, dir, "users/profile", `<h1>{name}</h1><Button onClick="edit()" text="Edit"/>`)

	files, err := scanner.Scan(context.Background(), dir, scanner.Options{})
	require.NoError(t, err)
	require.Len(t, files, 2)

	res, errs := New(Options{}).Compile(context.Background(), files)
	require.Empty(t, errs)
	require.NotNil(t, res)

	assert.Equal(t, []string{"Button", "users.profile"}, res.Registry.Names())
	assert.Equal(t, []string{"components_button.taglet.go", "users_profile.taglet.go", codegen.RegistryFile}, fileNames(res.Files))
	assert.Empty(t, res.Warnings)
}

func TestCompileNamesFilesRelativeToRoot(t *testing.T) {
	dir := testutils.CreateTempProject(t)
	testutils.WriteTemplate(t, dir, "components/button", `<t:def name="Button"><b>{text}</b></t:def>`)
	testutils.WriteTemplate(t, dir, "users/profile", "<p>\n<Buton/>\n</p>")

	files, err := scanner.Scan(context.Background(), dir, scanner.Options{})
	require.NoError(t, err)

	_, errs := New(Options{}).Compile(context.Background(), files)
	require.Len(t, errs, 1)
	assert.Equal(t, "users/profile.html", errs[0].File)

	testutils.WriteTemplate(t, dir, "users/profile", `<Button text="x"/>`)
	files, err = scanner.Scan(context.Background(), dir, scanner.Options{})
	require.NoError(t, err)

	res, errs := New(Options{SkipGenerate: true}).Compile(context.Background(), files)
	require.Empty(t, errs)
	m := NewManifest(res, "views")
	require.Len(t, m.Tags, 2)
	assert.Equal(t, "components/button.html", m.Tags[0].File)
	assert.Equal(t, "users/profile.html", m.Tags[1].File)
}

func TestCompileDuplicateTagProducesNoFiles(t *testing.T) {
	res, errs := New(Options{}).Compile(context.Background(), sources(map[string]string{
		"a": `<t:def name="Card"><div/></t:def>`,
		"b": `<t:def name="Card"><section/></t:def>`,
	}))

	assert.Nil(t, res, "a failed pass yields no result")
	require.Len(t, errs, 1)
	assert.Equal(t, errors.KindResolution, errs[0].Kind)
	assert.Equal(t, "b.html", errs[0].File)
	assert.Contains(t, errs[0].Message, `duplicate tag "Card"`)
}

func TestCompileSortsDiagnostics(t *testing.T) {
	_, errs := New(Options{}).Compile(context.Background(), sources(map[string]string{
		"z": "<p>\n<Missing/>\n</p>",
		"a": "<p>{}</p>\n<p>{ok</p>",
	}))

	require.Len(t, errs, 3)
	assert.Equal(t, "a.html", errs[0].File)
	assert.Equal(t, 1, errs[0].Line)
	assert.Equal(t, "a.html", errs[1].File)
	assert.Equal(t, 2, errs[1].Line)
	assert.Equal(t, "z.html", errs[2].File)
	assert.Equal(t, errors.KindResolution, errs[2].Kind)
}

func TestCompileDropsFollowOnErrorsOfBrokenFiles(t *testing.T) {
	_, errs := New(Options{}).Compile(context.Background(), sources(map[string]string{
		"a": "<p>{x</p>\n<Crad/>",
	}))

	require.Len(t, errs, 1)
	assert.Equal(t, errors.KindSyntax, errs[0].Kind)
}

func TestCompileFileCollisions(t *testing.T) {
	_, errs := New(Options{}).Compile(context.Background(), sources(map[string]string{
		"a/b": "<p>one</p>",
		"a_b": "<p>two</p>",
	}))

	var messages []string
	for _, ce := range errs {
		messages = append(messages, ce.Message)
	}
	assert.Contains(t, messages, `templates "a/b" and "a_b" both generate a_b.taglet.go`)
}

func TestCompileCarriesWarnings(t *testing.T) {
	res, errs := New(Options{}).Compile(context.Background(), sources(map[string]string{
		"loop": `<t:def name="Loop"><Loop/></t:def>`,
	}))

	assert.Empty(t, errs)
	require.NotNil(t, res)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, errors.SeverityWarning, res.Warnings[0].Severity)
}

func TestCompileSkipGenerate(t *testing.T) {
	res, errs := New(Options{SkipGenerate: true}).Compile(context.Background(), sources(map[string]string{
		"page": "<p>{x}</p>",
	}))

	require.Empty(t, errs)
	assert.Empty(t, res.Files)
	assert.Len(t, res.Escapes, 1)
}

func TestCompileReusesParsedTemplates(t *testing.T) {
	c := New(Options{SkipGenerate: true})
	files := map[string]string{
		"a": "<p>{a}</p>",
		"b": "<p>{b}</p>",
	}

	first, errs := c.Compile(context.Background(), sources(files))
	require.Empty(t, errs)
	assert.Equal(t, 2, c.CacheLen())

	files["b"] = "<p>{b}!</p>"
	second, errs := c.Compile(context.Background(), sources(files))
	require.Empty(t, errs)

	assert.Same(t, first.Registry.Templates()[0], second.Registry.Templates()[0], "unchanged files are not reparsed")
	assert.NotSame(t, first.Registry.Templates()[1], second.Registry.Templates()[1])

	delete(files, "a")
	_, errs = c.Compile(context.Background(), sources(files))
	require.Empty(t, errs)
	assert.Equal(t, 1, c.CacheLen(), "removed files leave the cache")
}

func TestCompileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, errs := New(Options{}).Compile(ctx, sources(map[string]string{"a": "<p/>"}))
	assert.Nil(t, res)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "compilation cancelled")
}

func TestCompileIsDeterministic(t *testing.T) {
	files := map[string]string{
		"button": `<t:def name="Button"><button onclick="{onClick}">{text}</button></t:def>`,
		"page":   `<t:for each={items} as="it"><Button onClick="{it.id}" text={it.label}/></t:for>`,
	}

	first, errs := New(Options{}).Compile(context.Background(), sources(files))
	require.Empty(t, errs)
	second, errs := New(Options{Workers: 1}).Compile(context.Background(), sources(files))
	require.Empty(t, errs)
	assert.Equal(t, first.Files, second.Files)
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "views")
	files := []codegen.File{
		{Name: "a.taglet.go", Source: []byte("package views\n")},
		{Name: codegen.RegistryFile, Source: []byte("package views\n\n// registry\n")},
	}

	n, err := WriteFiles(dir, files)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = WriteFiles(dir, files)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "unchanged files are not rewritten")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.taglet.go"), []byte("package views\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helpers.go"), []byte("package views\n"), 0o644))

	files[0].Source = []byte("package views\n\n// changed\n")
	n, err = WriteFiles(dir, files)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.NoFileExists(t, filepath.Join(dir, "stale.taglet.go"))
	assert.FileExists(t, filepath.Join(dir, "helpers.go"), "hand-written files are left alone")
	assert.FileExists(t, filepath.Join(dir, codegen.RegistryFile))
}

func TestManifestRoundTrip(t *testing.T) {
	res, errs := New(Options{SkipGenerate: true}).Compile(context.Background(), sources(map[string]string{
		"badge": `<t:def name="Badge"><t:param name="size" default="'md'"/><span class="{size}">{content}</span></t:def>`,
		"page":  `<Badge><b>{title}</b></Badge>`,
	}))
	require.Empty(t, errs)

	m := NewManifest(res, "views")
	require.Len(t, m.Tags, 2)
	badge := m.Tags[0]
	assert.Equal(t, "Badge", badge.Name)
	assert.Equal(t, "Badge", badge.Function)
	assert.Equal(t, "badge.html", badge.File)
	assert.Equal(t, []ManifestParam{
		{Name: "size", Type: "text", Default: "'md'"},
		{Name: "content", Type: "content", Required: true},
	}, badge.Params)
	assert.Equal(t, []string{"Badge"}, m.Tags[1].Calls)

	data, err := m.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "package: views")

	back, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}
