// Package scanner discovers template source files.
//
// The scanner walks a template root, keeps the files whose names end in the
// configured extension and match no exclude pattern, and reads them in
// parallel. Every file carries a CRC32 content hash so the compiler's parse
// cache can skip unchanged files, and results are sorted by logical path so
// downstream stages see a deterministic order.
package scanner

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultExtension is the template file extension used when none is
// configured.
const DefaultExtension = ".html"

// Options configures a scan.
type Options struct {
	// Extension selects template files, including the leading dot.
	Extension string
	// Exclude holds glob patterns matched against both the base name and
	// the slash-separated path relative to the root.
	Exclude []string
	// Workers bounds concurrent file reads. Zero uses NumCPU, capped at 8.
	Workers int
}

// SourceFile is one discovered template.
type SourceFile struct {
	// Path is the file path as found on disk.
	Path string
	// Name is the root-relative path with extension, using '/' separators.
	// Diagnostics and manifests refer to the file by this name.
	Name string
	// LogicalPath is the root-relative path without extension, using '/'
	// separators.
	LogicalPath string
	// Hash is the hex CRC32 of Content.
	Hash    string
	Content []byte
}

// BufferPool manages reusable byte buffers for file reading.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a new buffer pool with initial buffer size
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				// Most templates are well under 64KB
				return make([]byte, 0, 64*1024)
			},
		},
	}
}

// Get retrieves a buffer from the pool
func (bp *BufferPool) Get() []byte {
	return bp.pool.Get().([]byte)[:0]
}

// Put returns a buffer to the pool
func (bp *BufferPool) Put(buf []byte) {
	// Only pool reasonably-sized buffers to avoid memory leaks
	if cap(buf) <= 1024*1024 {
		bp.pool.Put(buf)
	}
}

var buffers = NewBufferPool()

// Scan returns the template files under root.
func Scan(ctx context.Context, root string, opts Options) ([]SourceFile, error) {
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	for _, pattern := range opts.Exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving template root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("template root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template root %s is not a directory", root)
	}

	var files []SourceFile
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, ok := Match(root, p, opts)
		if !ok {
			return nil
		}
		if _, err := validatePath(absRoot, p); err != nil {
			// Skip files resolving outside the root
			return nil
		}
		files = append(files, SourceFile{Path: p, Name: rel + opts.Extension, LogicalPath: rel})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = min(runtime.NumCPU(), 8)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range files {
		f := &files[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := ReadFile(f.Path)
			if err != nil {
				return err
			}
			f.Content = content
			f.Hash = Hash(content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].LogicalPath < files[j].LogicalPath
	})
	return files, nil
}

// Match reports whether the file at p, found under root, is a template and
// returns its logical path.
func Match(root, p string, opts Options) (string, bool) {
	ext := opts.Extension
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasSuffix(p, ext) {
		return "", false
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)
	for _, pattern := range opts.Exclude {
		if ok, _ := path.Match(pattern, base); ok {
			return "", false
		}
		if ok, _ := path.Match(pattern, rel); ok {
			return "", false
		}
	}
	logical := strings.TrimSuffix(rel, ext)
	if logical == "" || path.Base(logical) == "" {
		return "", false
	}
	return logical, true
}

// DisplayName returns Name, or Path for files built without a root.
func (f SourceFile) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.Path
}

// ReadFile reads a template through the shared buffer pool.
func ReadFile(p string) ([]byte, error) {
	file, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening file %s: %w", p, err)
	}
	defer file.Close()

	buffer := buffers.Get()
	defer func() { buffers.Put(buffer) }()

	for {
		if len(buffer) == cap(buffer) {
			buffer = append(buffer, 0)[:len(buffer)]
		}
		n, err := file.Read(buffer[len(buffer):cap(buffer)])
		buffer = buffer[:len(buffer)+n]
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", p, err)
		}
	}

	content := make([]byte, len(buffer))
	copy(content, buffer)
	return content, nil
}

// Hash returns the hex CRC32 of content.
func Hash(content []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(content))
}

// validatePath resolves symlinks in p and ensures the result stays inside
// root.
func validatePath(root, p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", p, err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	rel, err := filepath.Rel(realRoot, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the template root", p)
	}
	return abs, nil
}
