// Package prompt loads document templates, extracts their executable
// fragments and renders them against a context.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"codeprompt/internal/fragment"
	"codeprompt/internal/logging"
	"codeprompt/internal/vars"
)

// Template is a parsed document template. The raw text is rendered with
// text/template; fenced fragments are extracted from the same raw text.
type Template struct {
	name      string
	raw       string
	fragments []fragment.Fragment
	tmpl      *template.Template
}

// ParseOptions tunes template parsing.
type ParseOptions struct {
	// StrictFences turns an unterminated code fence into a parse error
	// instead of a warning.
	StrictFences bool
}

// Parse builds a Template from raw text.
func Parse(name, text string, opts ParseOptions) (*Template, error) {
	frags, err := fragment.Extract(text)
	if err != nil {
		var ufe *fragment.UnterminatedFenceError
		if !errors.As(err, &ufe) || opts.StrictFences {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		logging.TemplateWarn("Template %s: %v (fragments after it are ignored)", name, err)
	}

	tmpl, err := template.New(name).Funcs(sprig.FuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("unable to parse template %s: %w", name, err)
	}

	fragLog := logging.Get(logging.CategoryFragment)
	for _, f := range frags {
		fragLog.Debug("%s: %s", name, f)
	}
	logging.TemplateDebug("Parsed template %s: %d fragments", name, len(frags))
	return &Template{name: name, raw: text, fragments: frags, tmpl: tmpl}, nil
}

// Name returns the template name (its path when loaded from disk).
func (t *Template) Name() string { return t.name }

// Raw returns the unrendered template text.
func (t *Template) Raw() string { return t.raw }

// Fragments returns a copy of the extracted fragments in document order.
func (t *Template) Fragments() []fragment.Fragment {
	return append([]fragment.Fragment(nil), t.fragments...)
}

// Render executes the template with v as its data.
func (t *Template) Render(v vars.Map) (string, error) {
	buf := new(bytes.Buffer)
	if err := t.tmpl.Execute(buf, v); err != nil {
		return "", fmt.Errorf("unable to render template %s: %w", t.name, err)
	}
	return buf.String(), nil
}
