package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/conneroisu/taglet/internal/ast"
	"github.com/conneroisu/taglet/internal/infer"
	"github.com/conneroisu/taglet/internal/registry"
)

// registryFile emits Registry(), which binds every tag's parameters from
// the model through the runtime's Required/Optional accessors.
func registryFile(r *registry.Registry, sigs infer.Signatures, opts Options) ([]byte, error) {
	fg := &fileGen{reg: r, sigs: sigs, prefix: "_expr"}
	var body bytes.Buffer

	body.WriteString("// Registry returns a runtime registry rendering every tag from a model.\n")
	body.WriteString("func Registry() *runtime.Registry {\nr := runtime.NewRegistry()\n")
	for _, def := range r.Defs() {
		sig := sigs[def.Name]
		f := &funcGen{
			fileGen: fg,
			def:     def,
			w:       &body,
			names:   newNamer(r),
			scope:   &scope{vars: make(map[string]binding)},
		}
		fmt.Fprintf(&body, "r.Add(%q, %s, func(rc *runtime.Context) error {\n", def.Name, paramsLiteral(sig))
		args := []string{"rc"}
		for _, p := range sig.Params {
			v := f.names.declare(p.Name)
			args = append(args, v)
			f.bind(v, p)
		}
		fmt.Fprintf(&body, "return %s(%s)\n})\n", registry.GoName(def.Name), strings.Join(args, ", "))
	}
	body.WriteString("return r\n}\n")

	var b bytes.Buffer
	b.WriteString("// Code generated by taglet. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", opts.Package)
	fmt.Fprintf(&b, "import %q\n\n", RuntimeImport)
	fg.programs(&b)
	b.Write(body.Bytes())
	return format(RegistryFile, b.Bytes())
}

// bind emits the statements reading parameter p from the model into v.
func (f *funcGen) bind(v string, p *infer.Param) {
	check := "if err != nil {\nreturn err\n}\n"
	switch {
	case p.Type == ast.TypeText && p.Required:
		f.printf("%s, err := runtime.RequiredText(rc, %q)\n%s", v, p.Name, check)
	case p.Type == ast.TypeText:
		f.printf("%s, err := runtime.OptionalText(rc, %q, func() string {\nreturn %s\n})\n%s", v, p.Name, f.defaultArg(p), check)
	case p.Type == ast.TypeContent && p.Required:
		f.printf("%s, err := runtime.RequiredContent(rc, %q)\n%s", v, p.Name, check)
	case p.Type == ast.TypeContent:
		f.printf("%s := runtime.OptionalContent(rc, %q, func() runtime.Content {\nreturn %s\n})\n", v, p.Name, f.defaultArg(p))
	case p.Required:
		f.printf("%s, err := runtime.RequiredValue(rc, %q)\n%s", v, p.Name, check)
	default:
		f.printf("%s := runtime.OptionalValue(rc, %q, func() any {\nreturn %s\n})\n", v, p.Name, f.defaultArg(p))
	}
}

func paramsLiteral(sig *infer.Signature) string {
	if len(sig.Params) == 0 {
		return "nil"
	}
	items := make([]string, len(sig.Params))
	for i, p := range sig.RuntimeParams() {
		fields := []string{fmt.Sprintf("Name: %q", p.Name), "Kind: runtime.Param" + titleKind(p.Kind.String())}
		if p.Required {
			fields = append(fields, "Required: true")
		}
		if p.Default != "" {
			fields = append(fields, "Default: "+quote(p.Default))
		}
		items[i] = "{" + strings.Join(fields, ", ") + "}"
	}
	return "[]runtime.Param{" + strings.Join(items, ", ") + "}"
}

func titleKind(kind string) string {
	return strings.ToUpper(kind[:1]) + kind[1:]
}
