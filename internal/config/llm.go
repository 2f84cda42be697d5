package config

import "strings"

// LLMConfig configures the LLM query collaborators.
type LLMConfig struct {
	// Provider order tried by queryLLM / queryContext
	Preferences []string `yaml:"preferences"`

	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`

	OpenAIKey    string `yaml:"openai_key"`
	AnthropicKey string `yaml:"anthropic_key"`
	GroqKey      string `yaml:"groq_key"`
	GeminiKey    string `yaml:"gemini_key"`
}

// ValidProviders lists all known LLM providers.
var ValidProviders = []string{"OPENAI", "ANTHROPIC", "GROQ", "GEMINI"}

// IsValidProvider reports whether name is a known provider (case-insensitive).
func IsValidProvider(name string) bool {
	for _, p := range ValidProviders {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

// Keys returns the configured API key per provider.
func (c LLMConfig) Keys() map[string]string {
	return map[string]string{
		"OPENAI":    c.OpenAIKey,
		"ANTHROPIC": c.AnthropicKey,
		"GROQ":      c.GroqKey,
		"GEMINI":    c.GeminiKey,
	}
}
