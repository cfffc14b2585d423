package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func logicalPaths(files []SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.LogicalPath
	}
	return out
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", "<p>index</p>")
	writeFile(t, root, "users/profile.html", "<h1>{name}</h1>")
	writeFile(t, root, "users/list.html", "<ul></ul>")
	writeFile(t, root, "README.md", "# not a template")
	writeFile(t, root, ".cache/hidden.html", "<p/>")

	files, err := Scan(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"index", "users/list", "users/profile"}, logicalPaths(files))
	profile := files[2]
	assert.Equal(t, filepath.Join(root, "users", "profile.html"), profile.Path)
	assert.Equal(t, "users/profile.html", profile.Name)
	assert.Equal(t, "users/profile.html", profile.DisplayName())
	assert.Equal(t, "x.html", SourceFile{Path: "x.html"}.DisplayName())
	assert.Equal(t, "<h1>{name}</h1>", string(profile.Content))
	assert.Equal(t, Hash([]byte("<h1>{name}</h1>")), profile.Hash)
}

func TestScanExtensionAndExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.tpl", "a")
	writeFile(t, root, "b.tpl", "b")
	writeFile(t, root, "draft_c.tpl", "c")
	writeFile(t, root, "vendor/d.tpl", "d")
	writeFile(t, root, "e.html", "e")

	files, err := Scan(context.Background(), root, Options{
		Extension: ".tpl",
		Exclude:   []string{"draft_*", "vendor/*"},
		Workers:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, logicalPaths(files))
}

func TestScanRejectsInvalidPattern(t *testing.T) {
	_, err := Scan(context.Background(), t.TempDir(), Options{Exclude: []string{"[a-"}})
	assert.ErrorContains(t, err, "invalid exclude pattern")
}

func TestScanRoot(t *testing.T) {
	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})
	assert.ErrorContains(t, err, "template root")

	file := writeFile(t, t.TempDir(), "x.html", "x")
	_, err = Scan(context.Background(), file, Options{})
	assert.ErrorContains(t, err, "is not a directory")

	files, err := Scan(context.Background(), t.TempDir(), Options{})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.html", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, root, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanSkipsSymlinksOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := writeFile(t, t.TempDir(), "secret.html", "secret")
	writeFile(t, root, "ok.html", "ok")
	if err := os.Symlink(outside, filepath.Join(root, "link.html")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	files, err := Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, logicalPaths(files))
}

func TestMatch(t *testing.T) {
	root := filepath.FromSlash("/srv/templates")
	tests := []struct {
		name    string
		path    string
		opts    Options
		logical string
		ok      bool
	}{
		{"template", "/srv/templates/a/b.html", Options{}, "a/b", true},
		{"other extension", "/srv/templates/a.txt", Options{}, "", false},
		{"custom extension", "/srv/templates/a.tpl", Options{Extension: ".tpl"}, "a", true},
		{"outside root", "/srv/other/a.html", Options{}, "", false},
		{"excluded base", "/srv/templates/x/_draft.html", Options{Exclude: []string{"_*"}}, "", false},
		{"excluded path", "/srv/templates/x/a.html", Options{Exclude: []string{"x/*"}}, "", false},
		{"bare extension", "/srv/templates/.html", Options{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logical, ok := Match(root, filepath.FromSlash(tt.path), tt.opts)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.logical, logical)
		})
	}
}

func TestReadFileLargerThanPoolBuffer(t *testing.T) {
	content := strings.Repeat("<p>x</p>\n", 20000)
	p := writeFile(t, t.TempDir(), "big.html", content)

	got, err := ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	_, err = ReadFile(filepath.Join(t.TempDir(), "nope.html"))
	assert.Error(t, err)
}

func TestHash(t *testing.T) {
	assert.Equal(t, "00000000", Hash(nil))
	assert.Len(t, Hash([]byte("abc")), 8)
	assert.NotEqual(t, Hash([]byte("a")), Hash([]byte("b")))
}

func BenchmarkScan(b *testing.B) {
	root := b.TempDir()
	for i := 0; i < 200; i++ {
		p := filepath.Join(root, "dir", "t"+strings.Repeat("x", i%7)+string(rune('a'+i%26))+".html")
		_ = os.MkdirAll(filepath.Dir(p), 0o755)
		_ = os.WriteFile(p, []byte(strings.Repeat("<p>{x}</p>", 50)), 0o644)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Scan(context.Background(), root, Options{}); err != nil {
			b.Fatal(err)
		}
	}
}
