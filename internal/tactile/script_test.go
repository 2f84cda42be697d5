package tactile

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeprompt/internal/vars"
)

type fakeQuerier struct {
	prompts []string
}

func (f *fakeQuerier) QueryLLM(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	f.prompts = append(f.prompts, prompt)
	return map[string]any{"answer": "yes"}, nil
}

func (f *fakeQuerier) QueryContext(ctx context.Context, prompt string, schema, options map[string]any) (map[string]any, error) {
	f.prompts = append(f.prompts, prompt)
	return map[string]any{"answer": options["model"]}, nil
}

func newTestScript(t *testing.T, opts ...ScriptOption) (*ScriptExecutor, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := DefaultExecutorConfig()
	cfg.Stdout = &out
	cfg.Stderr = &out
	return NewScriptExecutor(cfg, opts...), &out
}

func TestScriptExecutor_ReturnValue(t *testing.T) {
	se, _ := newTestScript(t)

	out, err := se.Execute(context.Background(), vars.Map{}, "return 42\n")
	require.NoError(t, err)
	assert.Equal(t, vars.Map{"result": 42}, out)
}

func TestScriptExecutor_ReturnComparison(t *testing.T) {
	se, _ := newTestScript(t)

	cases := map[string]bool{
		"return 1 > 0":                 true,
		`return name == "x"`:           true,
		`return name != "x"`:           false,
		"ok := len(name) > 3\nreturn ok": false,
	}
	for body, want := range cases {
		out, err := se.Execute(context.Background(), vars.Map{"name": "x"}, body)
		require.NoError(t, err, body)
		assert.Equal(t, want, out["result"], body)
	}
}

func TestScriptExecutor_ReturnInsideClosure(t *testing.T) {
	se, _ := newTestScript(t)

	body := "double := func(n int) int {\n\treturn n * 2\n}\nreturn double(21)"
	out, err := se.Execute(context.Background(), vars.Map{}, body)
	require.NoError(t, err)
	assert.Equal(t, 42, out["result"])
}

func TestBoxReturns(t *testing.T) {
	src := "package main\n\nfunc fragment() any {\n\tf := func() bool { return 1 > 0 }\n\tif f() {\n\t\treturn 1 > 0\n\t}\n\treturn nil\n}\n"
	got := boxReturns(src)

	assert.Contains(t, got, "return any(1 > 0)")
	assert.Contains(t, got, "return 1 > 0 }")
	assert.Contains(t, got, "return nil")
	assert.Equal(t, "not go {", boxReturns("not go {"))
}

func TestScriptExecutor_NoReturnYieldsNil(t *testing.T) {
	se, _ := newTestScript(t)

	out, err := se.Execute(context.Background(), vars.Map{}, "x := 1\n_ = x\n")
	require.NoError(t, err)
	require.Contains(t, out, "result")
	assert.Nil(t, out["result"])
}

func TestScriptExecutor_ContextLocals(t *testing.T) {
	se, _ := newTestScript(t)

	v := vars.Map{"name": "alice", "count": 3, "not-an-ident": true}
	out, err := se.Execute(context.Background(), v, `return fmt.Sprintf("%s:%d", name, count)`)
	require.NoError(t, err)
	assert.Equal(t, "alice:3", out["result"])
}

func TestScriptExecutor_RedeclareContextKey(t *testing.T) {
	se, _ := newTestScript(t)

	out, err := se.Execute(context.Background(), vars.Map{"result": 1}, "result := 2\nreturn result + 1")
	require.NoError(t, err)
	assert.Equal(t, 3, out["result"])
}

func TestScriptExecutor_SetPublishesKeys(t *testing.T) {
	se, _ := newTestScript(t)

	body := "cp.Set(\"greeting\", \"hi\")\nreturn cp.Get(\"greeting\")"
	out, err := se.Execute(context.Background(), vars.Map{}, body)
	require.NoError(t, err)
	assert.Equal(t, vars.Map{"greeting": "hi", "result": "hi"}, out)
}

func TestScriptExecutor_HoistedImport(t *testing.T) {
	se, _ := newTestScript(t)

	body := "import \"unicode/utf8\"\nreturn utf8.RuneCountInString(name)"
	out, err := se.Execute(context.Background(), vars.Map{"name": "héllo"}, body)
	require.NoError(t, err)
	assert.Equal(t, 5, out["result"])
}

func TestScriptExecutor_Print(t *testing.T) {
	se, buf := newTestScript(t)

	_, err := se.Execute(context.Background(), vars.Map{}, `cp.Print("hello", 1)`)
	require.NoError(t, err)
	assert.Equal(t, "hello 1\n", buf.String())
}

func TestScriptExecutor_Panic(t *testing.T) {
	se, _ := newTestScript(t)

	_, err := se.Execute(context.Background(), vars.Map{}, `panic("boom")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestScriptExecutor_CompileError(t *testing.T) {
	se, _ := newTestScript(t)

	_, err := se.Execute(context.Background(), vars.Map{}, "return undefinedThing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefinedThing")
}

func TestScriptExecutor_Restricted(t *testing.T) {
	cfg := DefaultExecutorConfig()
	cfg.Unrestricted = false
	se := NewScriptExecutor(cfg)

	_, err := se.Execute(context.Background(), vars.Map{}, "import \"os/exec\"\nreturn exec.Command(\"ls\")")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden imports")

	out, err := se.Execute(context.Background(), vars.Map{}, "import \"strings\"\nreturn strings.ToUpper(\"ok\")")
	require.NoError(t, err)
	assert.Equal(t, "OK", out["result"])
}

func TestScriptExecutor_Spawn(t *testing.T) {
	skipOnWindows(t)

	se, _ := newTestScript(t, WithShell(newTestShell(t)))
	body := `out, err := cp.Spawn("echo $who")
if err != nil {
	panic(err)
}
return out`

	out, err := se.Execute(context.Background(), vars.Map{"who": "spawned"}, body)
	require.NoError(t, err)
	assert.Equal(t, "spawned\n", out["result"])
}

func TestScriptExecutor_Querier(t *testing.T) {
	q := &fakeQuerier{}
	se, _ := newTestScript(t, WithQuerier(q))

	body := `res, err := cp.QueryLLM("is it?", nil)
if err != nil {
	panic(err)
}
return res["answer"]`
	out, err := se.Execute(context.Background(), vars.Map{}, body)
	require.NoError(t, err)
	assert.Equal(t, "yes", out["result"])
	assert.Equal(t, []string{"is it?"}, q.prompts)
}

func TestScriptExecutor_NoQuerier(t *testing.T) {
	se, _ := newTestScript(t)

	out, err := se.Execute(context.Background(), vars.Map{}, "_, err := cp.QueryLLM(\"q\", nil)\nreturn err != nil")
	require.NoError(t, err)
	assert.Equal(t, true, out["result"])
}

func TestScriptExecutor_ExtractCodeBlocks(t *testing.T) {
	se, _ := newTestScript(t)

	v := vars.Map{"doc": "```bash\necho x\n```"}
	out, err := se.Execute(context.Background(), v, `return cp.ExtractCodeBlocks(doc)[0]["lang"]`)
	require.NoError(t, err)
	assert.Equal(t, "bash", out["result"])
}

func TestScriptExecutor_Cancellation(t *testing.T) {
	se, _ := newTestScript(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := se.Execute(ctx, vars.Map{}, "for {\n\ttime.Sleep(10 * time.Millisecond)\n}")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWrapCode(t *testing.T) {
	se, _ := newTestScript(t)

	v := vars.Map{
		"name":        "alice",
		"count":       3,
		"files_array": []string{"a.go"},
		"files-array": 1,
		"len":         2,
		"strings":     "shadow",
	}
	src := se.wrapCode(nil, "return strings.ToUpper(name)", v)

	assert.Contains(t, src, `import "strings"`)
	assert.Contains(t, src, "var _ = strings.TrimSpace")
	assert.Contains(t, src, `name := cp.Vars["name"].(string)`)
	assert.Contains(t, src, `count := cp.Vars["count"].(int)`)
	assert.Contains(t, src, `files_array := cp.Vars["files_array"]`)
	assert.NotContains(t, src, `cp.Vars["files-array"]`)
	assert.NotContains(t, src, `cp.Vars["len"]`)
	assert.NotContains(t, src, `cp.Vars["strings"]`)
	assert.False(t, strings.Contains(src, `import "fmt"`))
}

func TestHoistImports(t *testing.T) {
	body := "import \"strings\"\nimport (\n\tstr \"strconv\"\n\t// comment\n)\nreturn strings.ToUpper(str.Itoa(1))"

	specs, code := hoistImports(body)
	assert.Equal(t, []string{`"strings"`, `str "strconv"`}, specs)
	assert.Equal(t, "return strings.ToUpper(str.Itoa(1))", code)
	assert.Equal(t, map[string]bool{"strings": true, "str": true}, importNames(specs))
}

func TestValidateImports(t *testing.T) {
	assert.NoError(t, validateImports([]string{`"strings"`, `j "encoding/json"`}))

	err := validateImports([]string{`"net/http"`, `"os"`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net/http")
}
