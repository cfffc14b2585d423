package errors

import (
	"fmt"
	"strings"

	"github.com/a-h/templ"
)

// DiagnosticPage renders a standalone HTML page enumerating the
// diagnostics in l with their file, line and column.
func DiagnosticPage(l List) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>taglet: compilation failed</title>
</head>
<body style="margin:0;background:#1a202c;">
`)
	b.WriteString(Overlay(l))
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}

// Overlay generates the HTML error overlay injected into dev-mode pages.
// It returns an empty string when l holds no diagnostics.
func Overlay(l List) string {
	if len(l) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<div id="taglet-error-overlay" style="
	position: fixed;
	top: 0;
	left: 0;
	width: 100%%;
	height: 100%%;
	background: rgba(0, 0, 0, 0.85);
	color: white;
	font-family: 'Monaco', 'Menlo', monospace;
	font-size: 14px;
	z-index: 9999;
	padding: 20px;
	box-sizing: border-box;
	overflow: auto;
">
	<div style="max-width: 1000px; margin: 0 auto;">
		<h2 style="margin: 0 0 20px 0; color: #ff6b6b;">%d compiler diagnostic(s)</h2>
`, len(l))

	for _, ce := range l {
		color := "#ff6b6b"
		if ce.Severity == SeverityWarning {
			color = "#feca57"
		}
		message := ce.Message
		if len(ce.Suggestions) > 0 {
			message += " (did you mean " + strings.Join(ce.Suggestions, ", ") + "?)"
		}
		fmt.Fprintf(&b, `		<div class="taglet-error" style="background: #2d3748; padding: 15px; margin-bottom: 15px; border-radius: 4px; border-left: 4px solid %s;">
			<div style="color: %s; font-weight: bold; margin-bottom: 8px;">%s %s</div>
			<div style="color: #e2e8f0; margin-bottom: 5px;"><strong>%s</strong></div>
			<div class="taglet-error-location" style="color: #a0aec0; font-size: 12px;">%s</div>
		</div>
`, color, color, ce.Kind, ce.Severity,
			templ.EscapeString(message),
			templ.EscapeString(ce.Location()))
	}

	b.WriteString("\t</div>\n</div>")
	return b.String()
}
