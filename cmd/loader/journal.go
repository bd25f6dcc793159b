package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/crawl-loader/pkg/models"
	"github.com/Sriram-PR/crawl-loader/pkg/storage"
)

func newJournalCmd(global *globalOptions) *cobra.Command {
	var (
		forURL string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show journaled fetch failures",
		Long: `Show the failure journal, newest first, or every attempt recorded
for one URL in attempt order.

Examples:
  loader journal
  loader journal --limit 100
  loader journal --url http://example.com/missing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(global)
			if err != nil {
				return err
			}
			journal, err := storage.NewJournalStore(cfg.JournalPath, log.WithField("component", "journal"))
			if err != nil {
				return err
			}
			defer journal.Close()

			return printJournal(cmd.OutOrStdout(), journal, forURL, limit)
		},
	}

	cmd.Flags().StringVarP(&forURL, "url", "u", "", "Only show attempts for this URL")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records to show")

	return cmd
}

func printJournal(out io.Writer, journal storage.JournalReader, forURL string, limit int) error {
	var (
		records []models.FailureRecord
		err     error
	)
	if forURL != "" {
		records, err = journal.ForURL(forURL)
	} else {
		records, err = journal.Recent(limit)
	}
	if err != nil {
		return err
	}
	total, err := journal.Count()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tATTEMPT\tCATEGORY\tSTATUS\tURL\tREASON")
	for _, r := range records {
		status := "-"
		if r.HTTPStatus != 0 {
			status = fmt.Sprint(r.HTTPStatus)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format(time.DateTime), r.Attempt, r.Category, status, r.URL, r.Reason)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d of %d journaled failures shown\n", len(records), total)
	return nil
}
