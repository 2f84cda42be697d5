package fragment

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const sampleTemplate = "# Project {{ .absolute_path }}\n" +
	"Some prose.\n" +
	"```bash:pre\necho first\n```\n" +
	"More prose with `inline` code.\n" +
	"```go\nreturn 42\n```\n" +
	"```\nuntagged block\n```\n" +
	"```bash:post\necho namespaced\n```\n" +
	"```python\nprint('x')\n```\n" +
	"```sh:pre\necho {name}\n```\n"

func TestExtract_DocumentOrder(t *testing.T) {
	frags, err := Extract(sampleTemplate)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := []Fragment{
		{Index: 0, Tag: "bash:pre", Language: "bash", Body: "echo first\n", Phase: PhasePre, Kind: KindShell, Line: 3},
		{Index: 1, Tag: "go", Language: "go", Body: "return 42\n", Phase: PhasePost, Kind: KindScript, Line: 7},
		{Index: 2, Tag: "bash:post", Language: "bash", Body: "echo namespaced\n", Phase: PhaseNone, Kind: KindShell, Line: 13},
		{Index: 3, Tag: "python", Language: "python", Body: "print('x')\n", Phase: PhasePost, Kind: KindNone, Line: 16},
		{Index: 4, Tag: "sh:pre", Language: "sh", Body: "echo {name}\n", Phase: PhasePre, Kind: KindShell, Line: 19},
	}
	if diff := cmp.Diff(want, frags); diff != "" {
		t.Errorf("Extract mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_SkipsEmptyBody(t *testing.T) {
	frags, err := Extract("```go\n```\n```bash\necho ok```")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(frags) != 1 || frags[0].Body != "echo ok" {
		t.Errorf("expected only the non-empty bash block, got %v", frags)
	}
}

func TestExtract_DoesNotMutateInput(t *testing.T) {
	text := sampleTemplate
	_, _ = Extract(text)
	if text != sampleTemplate {
		t.Error("input text was modified")
	}
}

func TestExtract_Unterminated(t *testing.T) {
	text := "```go\nreturn 1\n```\nprose\n```bash:pre\necho never closed\n"

	frags, err := Extract(text)
	var ufe *UnterminatedFenceError
	if !errors.As(err, &ufe) {
		t.Fatalf("expected UnterminatedFenceError, got %v", err)
	}
	if ufe.Line != 5 {
		t.Errorf("expected line 5, got %d", ufe.Line)
	}
	if len(frags) != 1 || frags[0].Tag != "go" {
		t.Errorf("fragments before the open fence should be kept, got %v", frags)
	}
}

func TestExtract_Multiline(t *testing.T) {
	body := "x := 1\n\ny := x + 1\nreturn y\n"
	frags, err := Extract("```go\n" + body + "```")
	if err != nil {
		t.Fatal(err)
	}
	if frags[0].Body != body {
		t.Errorf("body not verbatim: %q", frags[0].Body)
	}
}

func TestPhaseOf(t *testing.T) {
	tests := []struct {
		tag  string
		want Phase
	}{
		{"bash:pre", PhasePre},
		{"go:pre", PhasePre},
		{"bash", PhasePost},
		{"go", PhasePost},
		{"bash:post", PhaseNone},
		{"go:lib", PhaseNone},
		{"a:pre:x", PhaseNone},
	}
	for _, tt := range tests {
		if got := PhaseOf(tt.tag); got != tt.want {
			t.Errorf("PhaseOf(%q) = %s, want %s", tt.tag, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := map[string]Kind{
		"go":         KindScript,
		"Golang:pre": KindScript,
		"bash":       KindShell,
		"sh:pre":     KindShell,
		"shell":      KindShell,
		"python":     KindNone,
		"gobash":     KindNone,
	}
	for tag, want := range tests {
		if got := KindOf(tag); got != want {
			t.Errorf("KindOf(%q) = %s, want %s", tag, got, want)
		}
	}
}

func TestSelect_PhasesAreDisjoint(t *testing.T) {
	frags, _ := Extract(sampleTemplate)

	pre := Select(frags, PhasePre)
	post := Select(frags, PhasePost)

	tags := func(fs []Fragment) []string {
		var out []string
		for _, f := range fs {
			out = append(out, f.Tag)
		}
		return out
	}

	if diff := cmp.Diff([]string{"bash:pre", "sh:pre"}, tags(pre)); diff != "" {
		t.Errorf("pre mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"go", "python"}, tags(post)); diff != "" {
		t.Errorf("post mismatch:\n%s", diff)
	}
	for _, f := range append(pre, post...) {
		if f.Tag == "bash:post" {
			t.Error("namespaced non-phase fragment must not be selected")
		}
	}
	if diff := cmp.Diff(pre, Select(frags, PhasePre), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Select not deterministic:\n%s", diff)
	}
}
