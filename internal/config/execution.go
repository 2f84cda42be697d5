package config

// ExecutionConfig configures fragment execution.
type ExecutionConfig struct {
	// Per-fragment timeout, "0" or empty disables it
	FragmentTimeout string `yaml:"fragment_timeout"`

	// Script fragments get the whole standard library when true; otherwise
	// only an allowlist of pure packages plus the cp capabilities.
	UnrestrictedScripts bool `yaml:"unrestricted_scripts"`

	// Fail template loading on an unterminated fence instead of warning
	StrictFences bool `yaml:"strict_fences"`

	// Cap on captured stdout and stderr, each
	MaxOutputBytes int64 `yaml:"max_output_bytes"`
}
