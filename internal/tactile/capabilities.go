package tactile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"

	"codeprompt/internal/fragment"
	"codeprompt/internal/vars"
)

// capabilityImportPath is the import path script fragments use for the
// capability package ("cp").
const capabilityImportPath = "codeprompt/cp"

// ErrNoLLM is returned by cp.QueryLLM / cp.QueryContext when no querier is
// wired into the script executor.
var ErrNoLLM = errors.New("no LLM querier configured")

// Querier answers language-model queries on behalf of script fragments.
type Querier interface {
	QueryLLM(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error)
	QueryContext(ctx context.Context, prompt string, schema, options map[string]any) (map[string]any, error)
}

// capabilities is the per-execution state behind the cp package.
type capabilities struct {
	ctx  context.Context
	exec *ScriptExecutor

	mu      sync.Mutex
	vars    map[string]any
	written vars.Map
	result  any
}

func newCapabilities(ctx context.Context, se *ScriptExecutor, v vars.Map) *capabilities {
	snapshot := make(map[string]any, len(v))
	for k, val := range v {
		snapshot[k] = val
	}
	return &capabilities{ctx: ctx, exec: se, vars: snapshot, written: vars.Map{}}
}

// exports builds the yaegi symbol table of the cp package.
func (c *capabilities) exports() interp.Exports {
	return interp.Exports{
		capabilityImportPath + "/cp": {
			"Vars":              reflect.ValueOf(&c.vars).Elem(),
			"Get":               reflect.ValueOf(c.get),
			"Set":               reflect.ValueOf(c.set),
			"Getenv":            reflect.ValueOf(os.Getenv),
			"Environ":           reflect.ValueOf(os.Environ),
			"Spawn":             reflect.ValueOf(c.spawn),
			"Print":             reflect.ValueOf(c.print),
			"Printf":            reflect.ValueOf(c.printf),
			"Context":           reflect.ValueOf(c.context),
			"Sleep":             reflect.ValueOf(c.sleep),
			"QueryLLM":          reflect.ValueOf(c.queryLLM),
			"QueryContext":      reflect.ValueOf(c.queryContext),
			"ExtractCodeBlocks": reflect.ValueOf(extractCodeBlocks),
			"Commit":            reflect.ValueOf(c.commit),
		},
	}
}

func (c *capabilities) get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vars[key]
}

// set publishes key into the partial result and makes it visible to later
// reads in the same fragment.
func (c *capabilities) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[key] = value
	c.written[key] = value
}

func (c *capabilities) snapshot() vars.Map {
	c.mu.Lock()
	defer c.mu.Unlock()
	return vars.Map(c.vars).Clone()
}

func (c *capabilities) spawn(command string) (string, error) {
	if c.exec.shell == nil {
		return "", fmt.Errorf("spawn unavailable: no shell executor")
	}
	return c.exec.shell.Run(c.ctx, c.snapshot(), command)
}

func (c *capabilities) print(a ...any) {
	fmt.Fprintln(c.exec.stdout, a...)
}

func (c *capabilities) printf(format string, a ...any) {
	fmt.Fprintf(c.exec.stdout, format, a...)
}

func (c *capabilities) context() context.Context {
	return c.ctx
}

func (c *capabilities) sleep(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *capabilities) queryLLM(prompt string, schema map[string]any) (map[string]any, error) {
	if c.exec.querier == nil {
		return nil, ErrNoLLM
	}
	return c.exec.querier.QueryLLM(c.ctx, prompt, schema)
}

func (c *capabilities) queryContext(prompt string, schema, options map[string]any) (map[string]any, error) {
	if c.exec.querier == nil {
		return nil, ErrNoLLM
	}
	return c.exec.querier.QueryContext(c.ctx, prompt, schema, options)
}

func (c *capabilities) commit(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = v
}

// extractCodeBlocks exposes the fragment extractor as lang/code pairs.
// Unterminated trailing fences are ignored here.
func extractCodeBlocks(text string) []map[string]string {
	frags, _ := fragment.Extract(text)
	out := make([]map[string]string, 0, len(frags))
	for _, f := range frags {
		out = append(out, map[string]string{"lang": f.Tag, "code": f.Body})
	}
	return out
}
