package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"codeprompt/internal/engine"
	"codeprompt/internal/logging"
	"codeprompt/internal/tactile"
	"codeprompt/internal/vars"
)

var (
	runFormat    string
	runVars      []string
	runQASession string
)

// runCmd runs the fragment pipeline
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Render the template and run its fragments",
	Long: `Renders the template, runs its ":pre" fragments, then its untagged
fragments, and prints the final context.

Shell fragments (bash, sh, shell) receive the context's scalar values as
environment variables and {key} placeholders. Go fragments (go, golang,
yaegi) see the context as local variables and the cp capability object.

If a fragment fails, the context as it stood before the failure is printed
and the command exits with the fragment's error.`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "json", "Output format: json or yaml")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Context variable as key=value (repeatable)")
	runCmd.Flags().StringVar(&runQASession, "record-qa", "", "Record LLM queries under this session")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if runFormat != "json" && runFormat != "yaml" {
		return fmt.Errorf("unknown format %q (want json or yaml)", runFormat)
	}
	v, err := parseVars(runVars)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(timeout)
	defer cancel()

	e, err := openEngine(engine.WithAuditCallback(logAudit))
	if err != nil {
		return err
	}
	defer e.Close()

	if runQASession != "" {
		e.RecordQA(runQASession)
	}

	out, runErr := e.RunTemplate(ctx, v)
	if out != nil {
		if err := writeContext(cmd.OutOrStdout(), out, runFormat); err != nil {
			return err
		}
	}
	if runErr != nil {
		logging.PhaseError("Run failed: %v", runErr)
		return runErr
	}
	return nil
}

func logAudit(ev tactile.AuditEvent) {
	switch ev.Type {
	case tactile.AuditEventStart:
		logging.TactileDebug("Shell start: %s", ev.Command)
	case tactile.AuditEventComplete:
		logging.TactileDebug("Shell done in %s: %s", ev.Duration, ev.Command)
	default:
		logging.TactileWarn("Shell %s (exit %d) after %s: %s", ev.Type, ev.ExitCode, ev.Duration, ev.Command)
	}
}

// writeContext prints the context with keys in sorted order.
func writeContext(w io.Writer, ctx vars.Map, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any(ctx)); err != nil {
			return fmt.Errorf("failed to encode context: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any(ctx)); err != nil {
			return fmt.Errorf("failed to encode context: %w", err)
		}
		return nil
	}
}
