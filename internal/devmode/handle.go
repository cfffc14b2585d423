// Package devmode recompiles templates while a server runs and swaps the
// result in atomically.
//
// Readers hold a Handle and load an immutable Snapshot for each request;
// they never wait on a recompilation. The Orchestrator is the only writer:
// it rebuilds the whole registry from disk on every change and publishes
// the new snapshot with one atomic store.
package devmode

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/conneroisu/taglet/internal/compiler"
	"github.com/conneroisu/taglet/internal/errors"
	"github.com/conneroisu/taglet/pkg/runtime"
)

// Snapshot is one published registry. It is never modified once stored.
type Snapshot struct {
	Registry *runtime.Registry
	// Generation counts successful compilations; the diagnostic snapshot
	// published before the first success has generation zero.
	Generation uint64
	// Manifest describes the tags of a successful compilation. It is nil
	// for the diagnostic snapshot.
	Manifest *compiler.Manifest
	// Diagnostics holds the errors rendered by the diagnostic snapshot, or
	// the warnings of a successful compilation.
	Diagnostics errors.List
	BuiltAt     time.Time
}

// Diagnostic reports whether the snapshot serves compilation errors
// instead of templates.
func (s *Snapshot) Diagnostic() bool {
	return s.Registry.IsFallback()
}

// Handle is the live registry handle shared between the orchestrator and
// request handlers.
type Handle struct {
	current atomic.Pointer[Snapshot]
}

// NewHandle returns an empty handle. Lookups fail until a snapshot is
// stored.
func NewHandle() *Handle {
	return &Handle{}
}

// Load returns the current snapshot, or nil before the first compilation.
func (h *Handle) Load() *Snapshot {
	return h.current.Load()
}

// Store publishes s.
func (h *Handle) Store(s *Snapshot) {
	h.current.Store(s)
}

// Lookup finds a tag in the current snapshot.
func (h *Handle) Lookup(name string) (*runtime.Tag, bool) {
	s := h.current.Load()
	if s == nil {
		return nil, false
	}
	return s.Registry.Lookup(name)
}

// Render renders a tag from the current snapshot. The snapshot is loaded
// once, so a swap during rendering does not affect this call.
func (h *Handle) Render(ctx context.Context, w io.Writer, name string, model runtime.Model) error {
	s := h.current.Load()
	if s == nil {
		return &runtime.UnknownTagError{Name: name}
	}
	return s.Registry.Render(ctx, w, name, model)
}

// diagnosticSnapshot builds a snapshot whose every lookup renders the
// diagnostic page for errs.
func diagnosticSnapshot(errs errors.List) *Snapshot {
	page := errors.DiagnosticPage(errs)
	return &Snapshot{
		Registry: runtime.NewFallbackRegistry(func(rc *runtime.Context) error {
			rc.Raw(page)
			return nil
		}),
		Diagnostics: errs,
		BuiltAt:     time.Now(),
	}
}
