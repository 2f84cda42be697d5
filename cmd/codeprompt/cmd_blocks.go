package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"codeprompt/internal/fragment"
)

var blocksShowBody bool

// blocksCmd lists the template's fragments
var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List the template's code fragments",
	Long: `Lists every tagged fenced block of the template in document order with
its phase and executor. Blocks in the "none" phase or with no executor are
extracted but never run.`,
	Args: cobra.NoArgs,
	RunE: listBlocks,
}

func init() {
	blocksCmd.Flags().BoolVar(&blocksShowBody, "body", false, "Print each fragment body")
}

func listBlocks(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	return writeBlocks(cmd.OutOrStdout(), e.Config().TemplatePath(), e.Fragments(), blocksShowBody)
}

func writeBlocks(w io.Writer, name string, frags []fragment.Fragment, showBody bool) error {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s: %d fragments", name, len(frags))))
	for _, f := range frags {
		status := dimStyle.Render(fmt.Sprintf("%s/%s", f.Phase, f.Kind))
		if f.Phase == fragment.PhaseNone || f.Kind == fragment.KindNone {
			status = skippedStyle.Render(fmt.Sprintf("%s/%s (skipped)", f.Phase, f.Kind))
		}
		fmt.Fprintf(w, "%3d  %s  line %d  %s\n", f.Index, tagStyle.Render(f.Tag), f.Line, status)
		if showBody {
			fmt.Fprintln(w, bodyStyle.Render(strings.TrimRight(f.Body, "\n")))
		}
	}
	return nil
}
