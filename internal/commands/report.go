package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jarvishq/jarvis/internal/report"
)

// Report handles `jarvis report [issue]`: print the full report for an
// issue's latest run, or a summary of all runs when no issue is given.
func Report(args []string) error {
	return reportRun(args, os.Stdout)
}

func reportRun(args []string, w io.Writer) error {
	db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 0 {
		runs, err := db.AllRuns()
		if err != nil {
			return err
		}
		fmt.Fprint(w, report.Summary(runs))
		return nil
	}

	number, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("issue number %q is not a number", args[0])
	}
	runs, err := db.RunsForIssue(number, "")
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(w, "no runs for issue #%d\n", number)
		return nil
	}

	// RunsForIssue returns newest first. With retries on record, show the
	// per-issue overview before the latest run's full report.
	if len(runs) > 1 {
		fmt.Fprint(w, report.IssueReport(number, runs))
		fmt.Fprintln(w)
	}
	latest := runs[0]
	events, err := db.EventsForRun(latest.ID)
	if err != nil {
		return err
	}
	fmt.Fprint(w, report.RunReport(latest, events))
	return nil
}
