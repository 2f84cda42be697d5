// Package fragment extracts executable fenced code blocks from a template
// and classifies them by phase and executor kind.
package fragment

import (
	"fmt"
	"strings"
)

// Separator splits a fragment tag into language and qualifier ("bash:pre").
const Separator = ":"

// PreSuffix marks a fragment as belonging to the Pre phase.
const PreSuffix = Separator + "pre"

// Phase is the execution ordering group a fragment belongs to.
type Phase int

const (
	// PhaseNone fragments are namespaced but not phase-tagged ("go:lib").
	// They are extracted but never dispatched.
	PhaseNone Phase = iota
	PhasePre
	PhasePost
)

func (p Phase) String() string {
	switch p {
	case PhasePre:
		return "pre"
	case PhasePost:
		return "post"
	default:
		return "none"
	}
}

// Kind selects the executor that runs a fragment body.
type Kind int

const (
	KindNone Kind = iota
	KindScript
	KindShell
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindShell:
		return "shell"
	default:
		return "none"
	}
}

// languageKinds is the closed mapping from fence language to executor kind.
var languageKinds = map[string]Kind{
	"go":     KindScript,
	"golang": KindScript,
	"yaegi":  KindScript,
	"bash":   KindShell,
	"sh":     KindShell,
	"shell":  KindShell,
}

// Fragment is one tagged fenced block. Immutable after extraction.
type Fragment struct {
	Index    int    // position among extracted fragments
	Tag      string // raw fence tag, e.g. "bash:pre"
	Language string // tag up to the separator, lower-cased
	Body     string // verbatim text between the fences
	Phase    Phase
	Kind     Kind
	Line     int // 1-based line of the opening fence
}

// PhaseOf classifies a fence tag.
func PhaseOf(tag string) Phase {
	switch {
	case strings.HasSuffix(tag, PreSuffix):
		return PhasePre
	case !strings.Contains(tag, Separator):
		return PhasePost
	default:
		return PhaseNone
	}
}

// KindOf returns the executor kind for a fence tag.
func KindOf(tag string) Kind {
	return languageKinds[languageOf(tag)]
}

func languageOf(tag string) string {
	lang, _, _ := strings.Cut(tag, Separator)
	return strings.ToLower(lang)
}

func newFragment(index int, tag, body string, line int) Fragment {
	return Fragment{
		Index:    index,
		Tag:      tag,
		Language: languageOf(tag),
		Body:     body,
		Phase:    PhaseOf(tag),
		Kind:     KindOf(tag),
		Line:     line,
	}
}

func (f Fragment) String() string {
	return fmt.Sprintf("#%d %s (line %d, %s/%s)", f.Index, f.Tag, f.Line, f.Phase, f.Kind)
}

// Select returns the fragments of the given phase, in document order.
func Select(frags []Fragment, phase Phase) []Fragment {
	var out []Fragment
	for _, f := range frags {
		if f.Phase == phase {
			out = append(out, f)
		}
	}
	return out
}
