package definition

import (
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Funcs are available in every recipe template.
var Funcs = template.FuncMap{
	"join":      func(items []string, sep string) string { return strings.Join(items, sep) },
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   func(s, old, new string) string { return strings.ReplaceAll(s, old, new) },
	"urlencode": url.QueryEscape,
}

// Template is a recipe string compiled when the document is decoded. Plain
// strings without actions render as themselves.
type Template struct {
	Raw  string
	tmpl *template.Template
}

func NewTemplate(raw string) (Template, error) {
	t := Template{Raw: raw}
	if !strings.Contains(raw, "{{") {
		return t, nil
	}
	parsed, err := template.New("").Funcs(Funcs).Option("missingkey=zero").Parse(raw)
	if err != nil {
		return t, err
	}
	t.tmpl = parsed
	return t, nil
}

func (t *Template) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := NewTemplate(raw)
	if err != nil {
		return fmt.Errorf("line %d: template %q: %w", node.Line, raw, err)
	}
	*t = parsed
	return nil
}

func (t Template) MarshalYAML() (any, error) { return t.Raw, nil }

func (t Template) IsZero() bool { return t.Raw == "" }

func (t Template) Render(data any) (string, error) {
	if t.tmpl == nil {
		return t.Raw, nil
	}
	var b strings.Builder
	if err := t.tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
