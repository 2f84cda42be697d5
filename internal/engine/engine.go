// Package engine implements the codeprompt pipeline.
//
// The pipeline:
//
//	Template → Traverse + Render → Pre fragments → Post fragments → Context
//
// A run seeds the context with the caller's variables and the workspace
// traversal, renders the template, then runs the template's Pre and Post
// fragments in document order. The first failing fragment ends the run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"codeprompt/internal/config"
	"codeprompt/internal/fragment"
	"codeprompt/internal/llm"
	"codeprompt/internal/logging"
	"codeprompt/internal/phase"
	"codeprompt/internal/prompt"
	"codeprompt/internal/store"
	"codeprompt/internal/tactile"
	"codeprompt/internal/vars"
	"codeprompt/internal/world"
)

// ErrNoTemplate is returned when a run starts before a template is loaded.
var ErrNoTemplate = errors.New("no template loaded")

// Prompt is a rendered template together with the context it was rendered
// from.
type Prompt struct {
	Context  vars.Map
	Rendered string
}

// Engine runs templates against a workspace.
type Engine struct {
	mu sync.RWMutex

	cfg        *config.Config
	loader     *prompt.Loader
	template   *prompt.Template
	scanner    *world.Scanner
	registry   *llm.Registry
	recorder   store.Recorder
	shell      *tactile.ShellExecutor
	script     *tactile.ScriptExecutor
	dispatcher *phase.Dispatcher

	// qaSession is the session queries are recorded under; nil when
	// recording is off.
	qaSession *string

	stdout io.Writer
	stderr io.Writer
	audit  func(tactile.AuditEvent)
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder replaces the QA recorder chosen from configuration.
func WithRecorder(r store.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithRegistry replaces the LLM registry built from configuration.
func WithRegistry(r *llm.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithOutput sets where script fragments print.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Engine) { e.stdout, e.stderr = stdout, stderr }
}

// WithAuditCallback observes every shell command the engine runs.
func WithAuditCallback(cb func(tactile.AuditEvent)) Option {
	return func(e *Engine) { e.audit = cb }
}

// New creates an engine. No template is loaded until LoadTemplate.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{cfg: cfg, stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(e)
	}

	loader, err := prompt.NewLoader(prompt.DefaultCacheSize, prompt.ParseOptions{
		StrictFences: cfg.Execution.StrictFences,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create template loader: %w", err)
	}
	e.loader = loader

	e.scanner = world.NewScanner(world.ScannerConfig{
		Extensions:      cfg.Extensions,
		IgnorePatterns:  cfg.Ignore,
		MaxBytesPerFile: cfg.MaxBytesPerFile,
	})
	if cfg.HTMLAsMarkdown {
		for _, ext := range world.HTMLExtensions {
			e.scanner.RegisterViewer(ext, world.HTMLViewer(cfg.MaxBytesPerFile))
		}
	}

	if e.registry == nil {
		e.registry = llm.NewRegistry(cfg.LLM, cfg.GetLLMTimeout())
	}

	if e.recorder == nil {
		if cfg.Store.QADatabase != "" {
			r, err := store.NewSQLiteRecorder(cfg.Store.QADatabase)
			if err != nil {
				return nil, err
			}
			e.recorder = r
		} else {
			e.recorder = store.NewMemoryRecorder()
		}
	}

	execCfg := tactile.DefaultExecutorConfig()
	execCfg.MaxOutputBytes = cfg.Execution.MaxOutputBytes
	execCfg.Unrestricted = cfg.Execution.UnrestrictedScripts
	execCfg.Stdout = e.stdout
	execCfg.Stderr = e.stderr
	execCfg.AuditCallback = e.audit

	shell, err := tactile.NewShellExecutorWithConfig(execCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create shell executor: %w", err)
	}
	e.shell = shell
	e.script = tactile.NewScriptExecutor(execCfg,
		tactile.WithShell(shell),
		tactile.WithQuerier(&recordingQuerier{engine: e}),
	)

	e.dispatcher = phase.NewDispatcher(nil,
		phase.WithExecutor(fragment.KindShell, e.shell),
		phase.WithExecutor(fragment.KindScript, e.script),
		phase.WithTimeout(cfg.GetFragmentTimeout()),
	)

	logging.Boot("Engine created (path=%s, template=%s)", cfg.Path, cfg.TemplatePath())
	return e, nil
}

// Close releases the QA recorder.
func (e *Engine) Close() error {
	return e.recorder.Close()
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// LoadTemplate loads the template at path, or the configured template when
// path is empty, and replaces the fragments the engine runs. A missing file
// yields an error wrapping fs.ErrNotExist.
func (e *Engine) LoadTemplate(path string) error {
	if path == "" {
		path = e.cfg.TemplatePath()
	}
	t, err := e.loader.Load(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.template = t
	e.mu.Unlock()
	e.dispatcher.SetFragments(t.Fragments())
	return nil
}

// Template returns the loaded template, or nil.
func (e *Engine) Template() *prompt.Template {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.template
}

// Fragments returns the fragments of the loaded template in document order.
func (e *Engine) Fragments() []fragment.Fragment {
	t := e.Template()
	if t == nil {
		return nil
	}
	return t.Fragments()
}

// GenerateContextPrompt traverses the workspace, seeds the context with the
// traversal on top of v and renders the loaded template with it.
func (e *Engine) GenerateContextPrompt(ctx context.Context, v vars.Map) (*Prompt, error) {
	t := e.Template()
	if t == nil {
		return nil, ErrNoTemplate
	}

	tr, err := e.scanner.Traverse(ctx, e.cfg.Path)
	if err != nil {
		return nil, err
	}
	seeded := vars.Merge(v, tr.Vars())

	rendered, err := t.Render(seeded)
	if err != nil {
		return nil, err
	}
	return &Prompt{Context: seeded, Rendered: rendered}, nil
}

// RunTemplate renders the template, then runs its Pre and Post fragments.
// It returns the final context. On failure the context as it stood after
// the last successful fragment is returned with the fragment's error.
func (e *Engine) RunTemplate(ctx context.Context, v vars.Map) (vars.Map, error) {
	timer := logging.StartTimer(logging.CategoryPhase, "RunTemplate")
	defer timer.Stop()

	p, err := e.GenerateContextPrompt(ctx, v)
	if err != nil {
		return nil, err
	}

	cur, err := e.dispatcher.Run(ctx, fragment.PhasePre, p.Context)
	if err != nil {
		return cur, err
	}
	return e.dispatcher.Run(ctx, fragment.PhasePost, cur)
}

// SetModelPreferences replaces the LLM provider order.
func (e *Engine) SetModelPreferences(prefs []string) {
	e.registry.SetModelPreferences(prefs)
}

// SetLLMAPI stores a provider API key. It reports false for an unknown
// provider.
func (e *Engine) SetLLMAPI(provider, key string) bool {
	return e.registry.SetLLMAPI(provider, key)
}

// RegisterFileViewer installs a custom viewer for an extension.
func (e *Engine) RegisterFileViewer(ext string, v world.Viewer) {
	e.scanner.RegisterViewer(ext, v)
}

// CreateSchema derives a response schema from a sample object.
func (e *Engine) CreateSchema(sample map[string]any) *llm.Schema {
	return llm.SchemaFromSample(sample)
}

// ValidateSchema reports whether data satisfies schema. Violations are
// logged.
func (e *Engine) ValidateSchema(schema *llm.Schema, data map[string]any) bool {
	if err := schema.Validate(data); err != nil {
		logging.Get(logging.CategoryLLM).Warn("Schema validation error: %v", err)
		return false
	}
	return true
}
