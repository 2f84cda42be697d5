package phase

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeprompt/internal/fragment"
	"codeprompt/internal/tactile"
	"codeprompt/internal/vars"
)

// recordingExecutor returns {"<body>": n} where n counts its calls, and
// records the context it was handed.
type recordingExecutor struct {
	calls []string
	seen  []vars.Map
	fail  map[string]error
	delay time.Duration
}

func (r *recordingExecutor) Name() string { return "recording" }

func (r *recordingExecutor) Execute(ctx context.Context, v vars.Map, body string) (vars.Map, error) {
	r.calls = append(r.calls, body)
	r.seen = append(r.seen, v.Clone())
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := r.fail[body]; err != nil {
		return nil, err
	}
	return vars.Map{body: len(r.calls)}, nil
}

func mustExtract(t *testing.T, text string) []fragment.Fragment {
	t.Helper()
	frags, err := fragment.Extract(text)
	require.NoError(t, err)
	return frags
}

const mixedTemplate = "# doc\n" +
	"```bash:pre\npre1\n```\n" +
	"```go\npost1\n```\n" +
	"```bash:post\nnever\n```\n" +
	"```python\nunrouted\n```\n" +
	"```sh:pre\npre2\n```\n" +
	"```bash\npost2\n```\n"

func TestRun_PhaseSelectionAndOrder(t *testing.T) {
	rec := &recordingExecutor{}
	d := NewDispatcher(mustExtract(t, mixedTemplate),
		WithExecutor(fragment.KindShell, rec),
		WithExecutor(fragment.KindScript, rec),
	)

	out, err := d.Run(context.Background(), fragment.PhasePre, vars.Map{})
	require.NoError(t, err)
	assert.Equal(t, []string{"pre1\n", "pre2\n"}, rec.calls)
	assert.Equal(t, vars.Map{"pre1\n": 1, "pre2\n": 2}, out)

	rec.calls = nil
	out, err = d.Run(context.Background(), fragment.PhasePost, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"post1\n", "post2\n"}, rec.calls)
	assert.Contains(t, out, "pre1\n")
	assert.NotContains(t, out, "never\n")
	assert.NotContains(t, out, "unrouted\n")
}

func TestRun_ContextThreading(t *testing.T) {
	rec := &recordingExecutor{}
	d := NewDispatcher(mustExtract(t, "```bash\na\n```\n```bash\nb\n```\n"),
		WithExecutor(fragment.KindShell, rec))

	in := vars.Map{"seed": "x"}
	out, err := d.Run(context.Background(), fragment.PhasePost, in)
	require.NoError(t, err)

	if diff := cmp.Diff(vars.Map{"seed": "x"}, rec.seen[0]); diff != "" {
		t.Errorf("first fragment context mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(vars.Map{"seed": "x", "a\n": 1}, rec.seen[1]); diff != "" {
		t.Errorf("second fragment context mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, vars.Map{"seed": "x", "a\n": 1, "b\n": 2}, out)
	assert.Equal(t, vars.Map{"seed": "x"}, in, "input must not be modified")
}

func TestRun_Idempotent(t *testing.T) {
	frags := mustExtract(t, "```bash:pre\na\n```\n")
	rec := &recordingExecutor{}
	d := NewDispatcher(frags, WithExecutor(fragment.KindShell, rec))

	_, err := d.Run(context.Background(), fragment.PhasePre, vars.Map{})
	require.NoError(t, err)
	_, err = d.Run(context.Background(), fragment.PhasePre, vars.Map{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a\n", "a\n"}, rec.calls)
	assert.Len(t, d.Fragments(fragment.PhasePre), 1)
}

func TestRun_FailureStopsPhase(t *testing.T) {
	boom := errors.New("boom")
	rec := &recordingExecutor{fail: map[string]error{"b\n": boom}}
	d := NewDispatcher(mustExtract(t, "```bash\na\n```\n```bash\nb\n```\n```bash\nc\n```\n"),
		WithExecutor(fragment.KindShell, rec))

	out, err := d.Run(context.Background(), fragment.PhasePost, vars.Map{})
	assert.Same(t, boom, err)
	assert.Equal(t, []string{"a\n", "b\n"}, rec.calls)
	assert.Equal(t, vars.Map{"a\n": 1}, out)
}

func TestRun_NoFragments(t *testing.T) {
	d := NewDispatcher(nil)
	in := vars.Map{"k": 1}
	out, err := d.Run(context.Background(), fragment.PhasePre, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRun_FragmentTimeout(t *testing.T) {
	rec := &recordingExecutor{delay: time.Second}
	d := NewDispatcher(mustExtract(t, "```bash\nslow\n```\n"),
		WithExecutor(fragment.KindShell, rec),
		WithTimeout(20*time.Millisecond))

	_, err := d.Run(context.Background(), fragment.PhasePost, vars.Map{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_ShellFailurePropagates(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell syntax")
	}

	shell, err := tactile.NewShellExecutor()
	require.NoError(t, err)
	d := NewDispatcher(mustExtract(t, "```bash\nexit 1\n```\n```bash\necho later\n```\n"),
		WithExecutor(fragment.KindShell, shell))

	out, err := d.Run(context.Background(), fragment.PhasePost, vars.Map{})

	var ce *tactile.CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.ExitCode)
	assert.NotContains(t, out, vars.KeyOutput)
}

func TestRegisterAndSetFragments(t *testing.T) {
	rec := &recordingExecutor{}
	d := NewDispatcher(mustExtract(t, "```go\nold\n```\n"))
	d.Register(fragment.KindScript, rec)
	d.SetFragments(mustExtract(t, "```go\nnew\n```\n"))

	_, err := d.Run(context.Background(), fragment.PhasePost, vars.Map{})
	require.NoError(t, err)
	assert.Equal(t, []string{"new\n"}, rec.calls)
}
