package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"codeprompt/internal/config"
	"codeprompt/internal/engine"
	"codeprompt/internal/logging"
	"codeprompt/internal/vars"
)

var (
	// Global flags
	configPath   string
	verbose      bool
	workspace    string
	templatePath string
	timeout      time.Duration

	// Loaded by PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "codeprompt",
	Short: "codeprompt - render code context prompts and run their fragments",
	Long: `codeprompt walks a directory tree, renders a document template with the
tree and the file contents, then runs the fenced code fragments embedded in
the template.

Fragments tagged with a ":pre" suffix run first, untagged ones after, each
seeing the variables the earlier ones produced.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if workspace != "" {
			cfg.Path = workspace
		}
		if templatePath != "" {
			cfg.Template = templatePath
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		if err := logging.Initialize(logging.Options{
			Level:      level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.BootDebug("Config loaded from %s (path=%s)", configPath, cfg.Path)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Directory to traverse (default: config path)")
	rootCmd.PersistentFlags().StringVarP(&templatePath, "template", "t", "", "Template file (default: config template)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall operation timeout (render --watch runs until interrupted)")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(blocksCmd)
	rootCmd.AddCommand(qaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM and, when
// limit is positive, after limit.
func signalContext(limit time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if limit > 0 {
		ctx, cancel = context.WithTimeout(ctx, limit)
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

// openEngine builds an engine from the loaded config and loads its template.
func openEngine(opts ...engine.Option) (*engine.Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e, err := engine.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := e.LoadTemplate(""); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// parseVars turns repeated key=value flags into caller variables.
func parseVars(pairs []string) (vars.Map, error) {
	v := vars.Map{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", pair)
		}
		v[key] = value
	}
	return v, nil
}
