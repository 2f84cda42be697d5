package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"codeprompt/internal/diff"
	"codeprompt/internal/engine"
	"codeprompt/internal/logging"
	"codeprompt/internal/prompt"
	"codeprompt/internal/vars"
)

var (
	renderPretty bool
	renderWatch  bool
	renderDiff   bool
	renderVars   []string
)

// renderCmd prints the rendered prompt
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the template against the workspace",
	Long: `Traverses the workspace and renders the template with absolute_path,
source_tree and files_array plus any --var values. Fragments are not run.

With --watch the prompt is rendered again each time the template changes;
add --diff to print only what changed between renders.`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().BoolVar(&renderPretty, "pretty", false, "Render markdown for the terminal")
	renderCmd.Flags().BoolVar(&renderWatch, "watch", false, "Re-render when the template changes")
	renderCmd.Flags().BoolVar(&renderDiff, "diff", false, "With --watch, print a unified diff instead of the full prompt")
	renderCmd.Flags().StringArrayVar(&renderVars, "var", nil, "Template variable as key=value (repeatable)")
}

func runRender(cmd *cobra.Command, args []string) error {
	v, err := parseVars(renderVars)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(renderTimeout())
	defer cancel()

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	text, err := renderOnce(ctx, e, v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(out, text); err != nil {
		return err
	}
	if !renderWatch {
		return nil
	}
	return watchAndRender(ctx, e, v, text, out)
}

// renderTimeout is the limit for a render. Watch mode runs until
// interrupted.
func renderTimeout() time.Duration {
	if renderWatch {
		return 0
	}
	return timeout
}

func renderOnce(ctx context.Context, e *engine.Engine, v vars.Map) (string, error) {
	p, err := e.GenerateContextPrompt(ctx, v)
	if err != nil {
		return "", err
	}
	if !renderPretty {
		return p.Rendered, nil
	}
	return prettyMarkdown(p.Rendered)
}

func prettyMarkdown(md string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return r.Render(md)
}

// watchAndRender blocks until ctx is done, reloading and re-rendering the
// template on each change. prev is the last text written to out.
func watchAndRender(ctx context.Context, e *engine.Engine, v vars.Map, prev string, out io.Writer) error {
	path := e.Config().TemplatePath()
	w, err := prompt.NewWatcher(path, func(changed string) {
		if err := e.LoadTemplate(path); err != nil {
			logging.Get(logging.CategoryTemplate).Error("Reload failed: %v", err)
			return
		}
		text, err := renderOnce(ctx, e, v)
		if err != nil {
			logging.Get(logging.CategoryTemplate).Error("Render failed: %v", err)
			return
		}
		fmt.Fprintln(out, separatorStyle.Render("--- "+changed+" ---"))
		fmt.Fprint(out, changeText(prev, text))
		prev = text
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	<-ctx.Done()
	return nil
}

// changeText is what a re-render prints: the full text, or with --diff the
// unified diff against the previous render.
func changeText(prev, next string) string {
	if !renderDiff {
		return next
	}
	d := diff.Unified("previous", "current", prev, next)
	if d == "" {
		return dimStyle.Render("(no change)") + "\n"
	}
	return d
}
