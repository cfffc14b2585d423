package server

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/conneroisu/taglet/internal/errors"
	"github.com/conneroisu/taglet/internal/version"
	"github.com/conneroisu/taglet/pkg/runtime"
)

// maxModelSize bounds JSON request bodies.
const maxModelSize = 1 << 20

// UpdateMessage is sent to browsers over the websocket.
type UpdateMessage struct {
	Type       string       `json:"type"`
	Generation uint64       `json:"generation,omitempty"`
	Errors     []Diagnostic `json:"errors,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Diagnostic is the JSON form of a compiler error.
type Diagnostic struct {
	Kind        string   `json:"kind"`
	Severity    string   `json:"severity"`
	Message     string   `json:"message"`
	File        string   `json:"file,omitempty"`
	Line        int      `json:"line,omitempty"`
	Column      int      `json:"column,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func diagnostics(l errors.List) []Diagnostic {
	out := make([]Diagnostic, len(l))
	for i, ce := range l {
		out[i] = Diagnostic{
			Kind:        ce.Kind.String(),
			Severity:    ce.Severity.String(),
			Message:     ce.Message,
			File:        ce.File,
			Line:        ce.Line,
			Column:      ce.Column,
			Suggestions: ce.Suggestions,
		}
	}
	return out
}

// Status is the body of /api/status.
type Status struct {
	State      string       `json:"state"`
	Generation uint64       `json:"generation"`
	Tags       []string     `json:"tags"`
	BuiltAt    time.Time    `json:"built_at,omitempty"`
	LastErrors []Diagnostic `json:"last_errors,omitempty"`
	Warnings   []Diagnostic `json:"warnings,omitempty"`
	Version    string       `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		State:      s.orch.State().String(),
		Tags:       []string{},
		LastErrors: diagnostics(s.orch.LastErrors()),
		Version:    version.Short(),
	}
	if snap := s.handle.Load(); snap != nil {
		status.Generation = snap.Generation
		status.BuiltAt = snap.BuiltAt
		if !snap.Diagnostic() {
			status.Tags = snap.Registry.Names()
			status.Warnings = diagnostics(snap.Diagnostics)
		}
	}
	s.writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	code := http.StatusOK
	health := map[string]any{
		"status":  "healthy",
		"state":   s.orch.State().String(),
		"version": version.Short(),
	}
	if s.handle.Load() == nil {
		health["status"] = "starting"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, code, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode response", "path", r.URL.Path)
	}
}

// handleRender renders one tag. The model comes from the query string, or
// from a JSON object body on POST.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tag")

	snap := s.handle.Load()
	if snap == nil {
		http.Error(w, "templates are still compiling", http.StatusServiceUnavailable)
		return
	}

	model, err := readModel(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	err = snap.Registry.Render(r.Context(), &buf, name, model)
	code := http.StatusOK
	var (
		unknown *runtime.UnknownTagError
		missing *runtime.MissingParameterError
		badType *runtime.ParameterTypeError
	)
	switch {
	case snap.Diagnostic():
		code = http.StatusInternalServerError
	case stderrors.As(err, &unknown):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case stderrors.As(err, &missing), stderrors.As(err, &badType):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.logger.Error(r.Context(), err, "Render failed", "tag", name)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	page := buf.String()
	if s.opts.LiveReload {
		page = injectScript(page, reloadScript)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, page)
}

func readModel(w http.ResponseWriter, r *http.Request) (runtime.Model, error) {
	model := runtime.Model{}
	if r.Method == http.MethodPost {
		body := http.MaxBytesReader(w, r.Body, maxModelSize)
		if err := json.NewDecoder(body).Decode(&model); err != nil && err != io.EOF {
			return nil, fmt.Errorf("invalid JSON model: %w", err)
		}
		return model, nil
	}
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			model[key] = values[0]
		} else {
			list := make([]any, len(values))
			for i, v := range values {
				list[i] = v
			}
			model[key] = list
		}
	}
	return model, nil
}

// injectScript inserts script before </body>, or appends it to fragments.
func injectScript(page, script string) string {
	if i := strings.LastIndex(strings.ToLower(page), "</body>"); i >= 0 {
		return page[:i] + script + page[i:]
	}
	return page + script
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.handle.Load()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if snap != nil && snap.Diagnostic() {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, injectScript(errors.DiagnosticPage(snap.Diagnostics), s.script()))
		return
	}

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>taglet</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #1a202c; }
code { background: #edf2f7; padding: 0 4px; border-radius: 3px; }
li { margin-bottom: 0.5rem; }
</style>
</head>
<body>
`)
	if snap == nil || snap.Manifest == nil {
		b.WriteString("<p>Templates are still compiling.</p>\n")
	} else {
		fmt.Fprintf(&b, "<h1>%d tags</h1>\n<p>generation %d</p>\n<ul>\n", len(snap.Manifest.Tags), snap.Generation)
		for _, tag := range snap.Manifest.Tags {
			href := templ.URL("/render/" + tag.Name)
			fmt.Fprintf(&b, `<li><a href="%s">%s</a> <code>%s</code>`,
				templ.EscapeString(string(href)), templ.EscapeString(tag.Name), templ.EscapeString(tag.File))
			if len(tag.Params) > 0 {
				params := make([]string, len(tag.Params))
				for i, p := range tag.Params {
					param := p.Name + " " + p.Type
					if !p.Required {
						param += "?"
					}
					params[i] = templ.EscapeString(param)
				}
				fmt.Fprintf(&b, " (%s)", strings.Join(params, ", "))
			}
			b.WriteString("</li>\n")
		}
		b.WriteString("</ul>\n")
	}
	b.WriteString(s.script())
	b.WriteString("</body>\n</html>\n")
	_, _ = io.WriteString(w, b.String())
}

func (s *Server) script() string {
	if !s.opts.LiveReload {
		return ""
	}
	return reloadScript
}

// reloadScript reloads the page after a swap and shows compiler errors in
// an overlay when a recompilation fails.
const reloadScript = `<script>
(function() {
	var proto = location.protocol === "https:" ? "wss://" : "ws://";
	function connect() {
		var ws = new WebSocket(proto + location.host + "/ws");
		ws.onmessage = function(event) {
			var msg = JSON.parse(event.data);
			if (msg.type === "reload") {
				location.reload();
			} else if (msg.type === "error") {
				showErrors(msg.errors || []);
			}
		};
		ws.onclose = function() { setTimeout(connect, 1000); };
	}
	function showErrors(errors) {
		var old = document.getElementById("taglet-error-overlay");
		if (old) { old.remove(); }
		var overlay = document.createElement("div");
		overlay.id = "taglet-error-overlay";
		overlay.style.cssText = "position:fixed;top:0;left:0;width:100%;height:100%;background:rgba(0,0,0,0.85);color:#fff;font-family:monospace;padding:20px;box-sizing:border-box;overflow:auto;z-index:9999";
		errors.forEach(function(e) {
			var line = document.createElement("div");
			line.style.marginBottom = "10px";
			line.textContent = (e.file ? e.file + ":" + e.line + ":" + e.column + ": " : "") + e.message;
			overlay.appendChild(line);
		});
		document.body.appendChild(overlay);
	}
	connect();
})();
</script>
`
