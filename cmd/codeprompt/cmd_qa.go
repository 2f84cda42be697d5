package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"codeprompt/internal/store"
)

// qaCmd prints recorded LLM exchanges
var qaCmd = &cobra.Command{
	Use:   "qa [session]",
	Short: "Show recorded LLM queries for a session",
	Long: `Prints the queries and answers recorded with "run --record-qa". Requires
store.qa_database in the config; in-memory recordings do not outlive a run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showQA,
}

func showQA(cmd *cobra.Command, args []string) error {
	if cfg.Store.QADatabase == "" {
		return fmt.Errorf("no QA database configured (set store.qa_database)")
	}
	session := ""
	if len(args) == 1 {
		session = args[0]
	}

	r, err := store.NewSQLiteRecorder(cfg.Store.QADatabase)
	if err != nil {
		return err
	}
	defer r.Close()

	recs, err := r.Recordings(context.Background(), session)
	if err != nil {
		return err
	}
	return writeQA(cmd.OutOrStdout(), session, recs)
}

func writeQA(w io.Writer, session string, recs []store.QARecord) error {
	if len(recs) == 0 {
		fmt.Fprintf(w, "No recordings for session %q\n", session)
		return nil
	}
	for _, rec := range recs {
		fmt.Fprintln(w, headerStyle.Render(rec.CreatedAt.Format("2006-01-02 15:04:05")+"  "+rec.ID))
		fmt.Fprintf(w, "Q: %s\n", rec.Prompt)
		if rec.Error != "" {
			fmt.Fprintln(w, skippedStyle.Render("error: "+rec.Error))
		} else {
			fmt.Fprintf(w, "A: %v\n", rec.Response)
		}
	}
	return nil
}
