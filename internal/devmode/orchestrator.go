package devmode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conneroisu/taglet/internal/build"
	"github.com/conneroisu/taglet/internal/compiler"
	"github.com/conneroisu/taglet/internal/errors"
	"github.com/conneroisu/taglet/internal/interp"
	"github.com/conneroisu/taglet/internal/logging"
	"github.com/conneroisu/taglet/internal/scanner"
	"github.com/conneroisu/taglet/internal/watcher"
)

// State is the lifecycle state of an Orchestrator.
type State int

const (
	// StateIdle is the state before the first compilation.
	StateIdle State = iota
	// StateRecompiling is set while a compilation runs.
	StateRecompiling
	// StateActive means a successful compilation is live. A later failed
	// compilation keeps the state Active and records LastErrors.
	StateActive
	// StateFailed means no compilation has succeeded yet and the
	// diagnostic registry is live.
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecompiling:
		return "recompiling"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultCompileTimeout bounds one recompilation when none is configured.
const DefaultCompileTimeout = 30 * time.Second

// Options configures an Orchestrator.
type Options struct {
	// Root is the template directory.
	Root string
	Scan scanner.Options
	// Package is the package clause used when OutputDir is set.
	Package string
	// OutputDir, when set, receives generated Go sources after every
	// successful compilation.
	OutputDir string
	// Check runs over OutputDir after sources are written. Its failures
	// are logged and never block a swap.
	Check *build.CommandCheck
	// CompileTimeout bounds one recompilation.
	CompileTimeout time.Duration
	// Debounce groups file events before a recompilation.
	Debounce time.Duration
	Metrics  *Metrics
	Logger   logging.Logger
}

// Event is delivered to listeners after every recompilation.
type Event struct {
	State    State
	Snapshot *Snapshot
	// Swapped is set when the recompilation published a new snapshot.
	Swapped bool
	Errors  errors.List
}

// Listener receives recompilation events. Listeners run synchronously on
// the recompiling goroutine and must not block.
type Listener func(Event)

// Orchestrator owns the live Handle and rebuilds it from disk.
type Orchestrator struct {
	opts     Options
	handle   *Handle
	compiler *compiler.Compiler
	logger   logging.Logger

	// compileMu serializes recompilations.
	compileMu sync.Mutex

	mu         sync.RWMutex
	state      State
	lastErrors errors.List
	generation uint64
	listeners  []Listener
}

// New creates an orchestrator publishing to handle.
func New(handle *Handle, opts Options) *Orchestrator {
	if opts.CompileTimeout <= 0 {
		opts.CompileTimeout = DefaultCompileTimeout
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Scan.Extension == "" {
		opts.Scan.Extension = scanner.DefaultExtension
	}
	return &Orchestrator{
		opts:   opts,
		handle: handle,
		compiler: compiler.New(compiler.Options{
			Package:      opts.Package,
			Extension:    opts.Scan.Extension,
			SkipGenerate: opts.OutputDir == "",
		}),
		logger: opts.Logger.WithComponent("devmode"),
	}
}

// Handle returns the live registry handle.
func (o *Orchestrator) Handle() *Handle {
	return o.handle
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// LastErrors returns the errors of the most recent failed compilation
// that left a previous good registry live. It is empty after a success.
func (o *Orchestrator) LastErrors() errors.List {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastErrors
}

// Subscribe registers a listener.
func (o *Orchestrator) Subscribe(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// Recompile rebuilds the registry from disk. It returns the diagnostics
// of the pass: warnings after a success, errors after a failure.
// Concurrent calls run one after another.
func (o *Orchestrator) Recompile(ctx context.Context) errors.List {
	o.compileMu.Lock()
	defer o.compileMu.Unlock()

	previous := o.setState(StateRecompiling)
	start := time.Now()
	perf := logging.StartOperation(o.logger, "recompile")

	ctx, cancel := context.WithTimeout(ctx, o.opts.CompileTimeout)
	defer cancel()

	snapshot, errs := o.compile(ctx)
	o.opts.Metrics.observe(start, snapshot != nil, len(errs.Errors()))

	if snapshot != nil {
		o.mu.Lock()
		o.generation++
		snapshot.Generation = o.generation
		o.state = StateActive
		o.lastErrors = nil
		o.mu.Unlock()

		o.handle.Store(snapshot)
		o.opts.Metrics.published(snapshot)
		perf.End(ctx, "generation", snapshot.Generation, "tags", snapshot.Registry.Len(), "warnings", len(errs))
		o.notify(Event{State: StateActive, Snapshot: snapshot, Swapped: true, Errors: errs})
		return errs
	}

	perf.EndWithError(ctx, errs.Err(), "errors", len(errs))

	// Before the first success the diagnostic registry is published so
	// every page shows what is wrong. Afterwards the last good registry
	// stays live.
	if previous == StateIdle || previous == StateFailed {
		diag := diagnosticSnapshot(errs)
		o.handle.Store(diag)
		o.opts.Metrics.published(diag)
		o.setState(StateFailed)
		o.mu.Lock()
		o.lastErrors = errs
		o.mu.Unlock()
		o.notify(Event{State: StateFailed, Snapshot: diag, Swapped: true, Errors: errs})
		return errs
	}

	o.mu.Lock()
	o.state = StateActive
	o.lastErrors = errs
	o.mu.Unlock()
	o.notify(Event{State: StateActive, Snapshot: o.handle.Load(), Errors: errs})
	return errs
}

// compile runs one full pass and loads it. A nil snapshot means failure.
func (o *Orchestrator) compile(ctx context.Context) (*Snapshot, errors.List) {
	files, err := scanner.Scan(ctx, o.opts.Root, o.opts.Scan)
	if err != nil {
		return nil, failure(o.opts.Root, "scanning templates: %v", err)
	}

	res, errs := o.compiler.Compile(ctx, files)
	if res == nil {
		return nil, errs
	}

	reg, err := interp.Load(res.Registry, res.Signatures, res.Escapes)
	if err != nil {
		return nil, failure(o.opts.Root, "%v", err)
	}

	warnings := res.Warnings
	if o.opts.OutputDir != "" {
		warnings = append(warnings, o.write(ctx, res)...)
	}
	if err := ctx.Err(); err != nil {
		return nil, failure(o.opts.Root, "recompilation timed out after %s", o.opts.CompileTimeout)
	}

	return &Snapshot{
		Registry:    reg,
		Manifest:    compiler.NewManifest(res, o.opts.Package),
		Diagnostics: warnings,
		BuiltAt:     time.Now(),
	}, warnings
}

// write emits generated sources and runs the check step. Failures come
// back as warnings; the in-process registry is already valid.
func (o *Orchestrator) write(ctx context.Context, res *compiler.Result) errors.List {
	n, err := compiler.WriteFiles(o.opts.OutputDir, res.Files)
	if err != nil {
		o.logger.Warn(ctx, err, "Failed to write generated sources", "dir", o.opts.OutputDir)
		var l errors.List
		l.Add(errors.Warning(errors.KindGeneration, o.opts.OutputDir, 0, 0, "%v", err))
		return l
	}
	o.logger.Debug(ctx, "Generated sources written", "dir", o.opts.OutputDir, "changed", n)
	if o.opts.Check == nil || n == 0 {
		return nil
	}
	out, err := o.opts.Check.Run(ctx)
	if err == nil {
		return nil
	}
	o.logger.Warn(ctx, err, "Check command failed", "command", o.opts.Check.String())
	l := errors.ParseToolOutput(o.opts.Check.String(), string(out))
	if len(l) == 0 {
		l.Add(errors.Warning(errors.KindGeneration, o.opts.OutputDir, 0, 0, "%s: %v", o.opts.Check, err))
	}
	return l
}

func failure(file, format string, args ...any) errors.List {
	var errs errors.List
	errs.Add(errors.New(errors.KindGeneration, file, 0, 0, format, args...))
	return errs
}

func (o *Orchestrator) setState(s State) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.state
	o.state = s
	return prev
}

func (o *Orchestrator) notify(e Event) {
	o.mu.RLock()
	listeners := make([]Listener, len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.RUnlock()
	for _, l := range listeners {
		l(e)
	}
}

// Run compiles once, then recompiles on every debounced template change
// until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if errs := o.Recompile(ctx); errs.HasErrors() {
		o.logger.Warn(ctx, errs.Err(), "Initial compilation failed", "errors", len(errs))
	}

	fw, err := watcher.NewFileWatcher(o.opts.Debounce, o.logger)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer fw.Stop()

	fw.AddFilter(watcher.TemplateFilter(o.opts.Scan.Extension))
	fw.AddFilter(watcher.ExcludeFilter(o.opts.Scan.Exclude))
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		o.logger.Info(ctx, "Recompiling templates", "changes", len(events), "first", events[0].Path)
		if errs := o.Recompile(ctx); errs.HasErrors() {
			return errs.Err()
		}
		return nil
	})

	if err := fw.AddRecursive(o.opts.Root); err != nil {
		return fmt.Errorf("watching %s: %w", o.opts.Root, err)
	}
	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	o.logger.Info(ctx, "Watching templates", "root", o.opts.Root)

	<-ctx.Done()
	return nil
}
