package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"codeprompt/internal/config"
	"codeprompt/internal/logging"
)

// Factory builds a client for one provider.
type Factory func(ctx context.Context, apiKey, model string) (Client, error)

// Registry holds provider keys and preferences and picks the client that
// answers queries: the first preferred provider that has both a key and a
// factory. With none available it falls back to NopClient.
type Registry struct {
	mu          sync.RWMutex
	keys        map[string]string
	preferences []string
	model       string
	timeout     time.Duration
	factories   map[string]Factory
	clients     map[string]Client
}

// NewRegistry creates a registry from the LLM configuration. Gemini is the
// only provider with a built-in factory; others can be added with
// RegisterFactory.
func NewRegistry(cfg config.LLMConfig, timeout time.Duration) *Registry {
	r := &Registry{
		keys:        make(map[string]string),
		preferences: normalize(cfg.Preferences),
		model:       cfg.Model,
		timeout:     timeout,
		factories:   make(map[string]Factory),
		clients:     make(map[string]Client),
	}
	for p, k := range cfg.Keys() {
		if k != "" {
			r.keys[p] = k
		}
	}
	r.factories["GEMINI"] = func(ctx context.Context, apiKey, model string) (Client, error) {
		return NewGeminiClient(ctx, apiKey, model)
	}
	return r
}

func normalize(providers []string) []string {
	out := make([]string, 0, len(providers))
	for _, p := range providers {
		out = append(out, strings.ToUpper(strings.TrimSpace(p)))
	}
	return out
}

// SetModelPreferences replaces the provider order.
func (r *Registry) SetModelPreferences(prefs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferences = normalize(prefs)
	logging.LLM("Model preferences updated: %v", r.preferences)
}

// Preferences returns the provider order.
func (r *Registry) Preferences() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.preferences...)
}

// SetLLMAPI stores the API key of a known provider. It reports false, and
// changes nothing, for an unknown provider name.
func (r *Registry) SetLLMAPI(provider, key string) bool {
	if !config.IsValidProvider(provider) {
		return false
	}
	provider = strings.ToUpper(provider)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[provider] = key
	delete(r.clients, provider)
	logging.LLMDebug("API key set for %s", provider)
	return true
}

// Key returns the stored key of provider.
func (r *Registry) Key(provider string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keys[strings.ToUpper(provider)]
}

// RegisterFactory installs the client factory of a provider.
func (r *Registry) RegisterFactory(provider string, f Factory) {
	provider = strings.ToUpper(provider)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = f
	delete(r.clients, provider)
}

// Client returns the client of the first usable preferred provider.
func (r *Registry) Client(ctx context.Context) (Client, error) {
	for _, p := range r.Preferences() {
		if r.available(p) {
			return r.providerClient(ctx, p)
		}
	}
	return NopClient{}, nil
}

func (r *Registry) available(p string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.clients[p]; ok {
		return true
	}
	return r.keys[p] != "" && r.factories[p] != nil
}

func (r *Registry) providerClient(ctx context.Context, p string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[p]; ok {
		return c, nil
	}
	key, factory := r.keys[p], r.factories[p]
	if key == "" || factory == nil {
		return nil, fmt.Errorf("provider %s is not available", p)
	}
	c, err := factory(ctx, key, r.model)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", p, err)
	}
	r.clients[p] = c
	logging.LLM("Using provider %s (%s)", p, c.Name())
	return c, nil
}

// Query sends prompt to the selected client under the configured timeout.
func (r *Registry) Query(ctx context.Context, prompt string, schema *Schema) (map[string]any, error) {
	c, err := r.Client(ctx)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, c, prompt, schema)
}

func (r *Registry) query(ctx context.Context, c Client, prompt string, schema *Schema) (map[string]any, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return c.Query(ctx, prompt, schema)
}

// QueryLLM answers a fragment query. schema is a sample object whose shape
// the answer must follow; nil leaves the shape open.
func (r *Registry) QueryLLM(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	return r.Query(ctx, prompt, sampleSchema(schema))
}

// QueryContext is QueryLLM with per-call options. A "context" option is
// prepended to the prompt; a "provider" option bypasses the preference
// order for this call.
func (r *Registry) QueryContext(ctx context.Context, prompt string, schema, options map[string]any) (map[string]any, error) {
	if extra, ok := options["context"].(string); ok && extra != "" {
		prompt = extra + "\n\n" + prompt
	}
	if p, ok := options["provider"].(string); ok && p != "" {
		c, err := r.providerClient(ctx, strings.ToUpper(p))
		if err != nil {
			return nil, err
		}
		return r.query(ctx, c, prompt, sampleSchema(schema))
	}
	return r.QueryLLM(ctx, prompt, schema)
}

func sampleSchema(sample map[string]any) *Schema {
	if sample == nil {
		return nil
	}
	return SchemaFromSample(sample)
}
