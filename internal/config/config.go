package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no --config
// flag is given.
const DefaultConfigFile = ".codeprompt.yaml"

// DefaultTemplatePath is used when neither config nor flags name a template.
var DefaultTemplatePath = filepath.Join("templates", "default.md.tmpl")

// Config holds all codeprompt configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Directory traversal
	Path            string   `yaml:"path"`
	Extensions      []string `yaml:"extensions"`
	Ignore          []string `yaml:"ignore"`
	MaxBytesPerFile int      `yaml:"max_bytes_per_file"`

	// Present .html/.htm files as simplified markdown
	HTMLAsMarkdown bool `yaml:"html_as_markdown"`

	// Template to render and execute
	Template string `yaml:"template"`

	// Fragment execution
	Execution ExecutionConfig `yaml:"execution"`

	// LLM collaborators
	LLM LLMConfig `yaml:"llm"`

	// QA recording persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures where QA recordings are kept.
type StoreConfig struct {
	// Empty keeps recordings in memory only.
	QADatabase string `yaml:"qa_database"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:            "codeprompt",
		Version:         "0.3.0",
		Path:            ".",
		MaxBytesPerFile: 8192,

		Execution: ExecutionConfig{
			FragmentTimeout:     "10m",
			UnrestrictedScripts: true,
			MaxOutputBytes:      10 * 1024 * 1024,
		},

		LLM: LLMConfig{
			Preferences: []string{"OPENAI", "ANTHROPIC", "GROQ", "GEMINI"},
			Model:       "gemini-2.5-flash",
			Timeout:     "120s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults, still subject to env overrides
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.OpenAIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.AnthropicKey = key
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.LLM.GroqKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.GeminiKey = key
	}

	if path := os.Getenv("CODEPROMPT_TEMPLATE"); path != "" {
		c.Template = path
	}
	if path := os.Getenv("CODEPROMPT_PATH"); path != "" {
		c.Path = path
	}
}

// TemplatePath returns the configured template or the default one.
func (c *Config) TemplatePath() string {
	if c.Template == "" {
		return DefaultTemplatePath
	}
	return c.Template
}

// GetFragmentTimeout returns the per-fragment timeout. Zero disables it.
func (c *Config) GetFragmentTimeout() time.Duration {
	if c.Execution.FragmentTimeout == "" || c.Execution.FragmentTimeout == "0" {
		return 0
	}
	d, err := time.ParseDuration(c.Execution.FragmentTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// Validate validates the configuration and reports every problem found.
func (c *Config) Validate() error {
	var err error

	if c.Path == "" {
		err = multierr.Append(err, fmt.Errorf("path must not be empty"))
	}
	if c.MaxBytesPerFile < 0 {
		err = multierr.Append(err, fmt.Errorf("max_bytes_per_file must be >= 0, got %d", c.MaxBytesPerFile))
	}
	if t := c.Execution.FragmentTimeout; t != "" && t != "0" {
		if _, perr := time.ParseDuration(t); perr != nil {
			err = multierr.Append(err, fmt.Errorf("invalid execution.fragment_timeout %q: %w", t, perr))
		}
	}
	if c.Execution.MaxOutputBytes < 0 {
		err = multierr.Append(err, fmt.Errorf("execution.max_output_bytes must be >= 0"))
	}
	for _, p := range c.LLM.Preferences {
		if !IsValidProvider(p) {
			err = multierr.Append(err, fmt.Errorf("invalid llm provider %q (valid: %s)", p, strings.Join(ValidProviders, ", ")))
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("invalid logging.format %q (valid: json, console)", c.Logging.Format))
	}

	return err
}
