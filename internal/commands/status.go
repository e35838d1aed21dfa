package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jarvishq/jarvis/internal/ledger"
)

var (
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// Status handles `jarvis status [issue]`: list runs from the ledger, newest
// first, optionally filtered to one issue.
func Status(args []string) error {
	return statusRun(args, os.Stdout)
}

func statusRun(args []string, w io.Writer) error {
	db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	var runs []ledger.Run
	if len(args) > 0 {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("issue number %q is not a number", args[0])
		}
		if runs, err = db.RunsForIssue(number, ""); err != nil {
			return err
		}
	} else {
		if runs, err = db.AllRuns(); err != nil {
			return err
		}
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no runs recorded"))
		return nil
	}
	for _, run := range runs {
		fmt.Fprintln(w, formatRun(run))
	}
	return nil
}

func formatRun(run ledger.Run) string {
	parts := []string{
		idStyle.Render(fmt.Sprintf("#%d", run.ID)),
		fmt.Sprintf("issue=%d", run.IssueNumber),
		statusStyle(run.Status).Render(string(run.Status)),
		string(run.Trigger),
		dimStyle.Render(run.CreatedAt.Format("2006-01-02 15:04")),
	}
	if run.PRURL != "" {
		parts = append(parts, "-> "+run.PRURL)
	}
	if run.Error != "" {
		parts = append(parts, failStyle.Render("| error: "+firstLine(run.Error)))
	}
	return strings.Join(parts, " ")
}

func statusStyle(s ledger.Status) lipgloss.Style {
	switch s {
	case ledger.StatusSuccess:
		return successStyle
	case ledger.StatusFailed, ledger.StatusTimeout, ledger.StatusBlocked, ledger.StatusNeedsHuman:
		return failStyle
	default:
		return pendingStyle
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
