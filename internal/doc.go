// Package internal contains the implementation packages of the taglet
// compiler and development server.
//
// # Package Organization
//
// A compilation pass runs through these packages in order:
//
//   - scanner: discovers template files and hashes their contents
//   - parser: turns one template file into an ast.Template
//   - registry: indexes tags by name and resolves every invocation
//   - infer: infers the parameters of every tag from its body and callers
//   - escape: assigns an HTML escaping mode to every interpolation
//   - codegen: emits one Go source file per template plus a registry file
//   - compiler: drives the stages above and caches parsed templates
//
// Development mode adds:
//
//   - interp: builds an in-process registry from an analyzed pass
//   - devmode: recompiles on change and swaps the live registry handle
//   - watcher: reports debounced template changes from fsnotify
//   - server: the chi development server with websocket live reload
//
// Supporting packages are config (viper), logging (slog), errors
// (compiler diagnostics), build (external check commands) and version.
//
// # Concurrency
//
// Compilation passes share no mutable state except the parse cache,
// which is keyed by content hash. In development mode the orchestrator is
// the only writer of the live handle; request handlers load one immutable
// snapshot per request and never block on a recompilation.
package internal
