package tactile

import (
	"errors"
	"testing"

	"codeprompt/internal/vars"
)

func TestSubstitute(t *testing.T) {
	v := vars.Map{
		"name":  "alice",
		"count": 3,
		"user":  map[string]any{"home": "/home/alice"},
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"no placeholders", "echo hi", "echo hi"},
		{"simple", "echo {name}", "echo alice"},
		{"integer", "seq {count}", "seq 3"},
		{"nested", "ls {user.home}", "ls /home/alice"},
		{"escaped braces", "echo {{literal}} ${{HOME}}", "echo {literal} ${HOME}"},
		{"adjacent", "{name}{count}", "alice3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Substitute(tt.body, v)
			if err != nil {
				t.Fatalf("Substitute failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSubstitute_MissingKey(t *testing.T) {
	_, err := Substitute("echo {undefined_key}", vars.Map{"name": "x"})

	var mke *MissingKeyError
	if !errors.As(err, &mke) {
		t.Fatalf("expected MissingKeyError, got %v", err)
	}
	if mke.Key != "undefined_key" {
		t.Errorf("expected key undefined_key, got %s", mke.Key)
	}
}

func TestSubstitute_Malformed(t *testing.T) {
	for _, body := range []string{"echo {name", "echo }", "echo {}"} {
		_, err := Substitute(body, vars.Map{"name": "x"})
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Errorf("%q: expected FormatError, got %v", body, err)
		}
	}
}
