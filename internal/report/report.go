package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jarvishq/jarvis/internal/ledger"
	"github.com/jarvishq/jarvis/internal/shell"
)

const maxTranscriptChars = 8000

// PRTitle builds the pull request title for an issue.
func PRTitle(issueNumber int, issueTitle string) string {
	return fmt.Sprintf("%s (#%d)", issueTitle, issueNumber)
}

// PRBody builds the pull request body: the closing reference plus the agent
// transcript folded into a details block, truncated to a readable size.
func PRBody(issueNumber int, agentName, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Closes #%d\n\n", issueNumber)
	fmt.Fprintf(&b, "Automated change produced by the %s backend.\n\n", agentName)
	b.WriteString("<details>\n<summary>Agent transcript</summary>\n\n```\n")
	b.WriteString(truncate(transcript, maxTranscriptChars))
	b.WriteString("\n```\n</details>\n")
	return b.String()
}

// SuccessComment is posted on the issue when a PR is ready.
func SuccessComment(prURL string, rounds int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Opened %s for this issue.\n", prURL)
	if rounds > 0 {
		fmt.Fprintf(&b, "\nThe change went through %d review round(s) before approval.\n", rounds)
	}
	return b.String()
}

// FailureComment is posted on the issue when a run ends in a non-success
// terminal status.
func FailureComment(run ledger.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated run #%d finished with status `%s`.\n", run.ID, run.Status)
	if run.Error != "" {
		fmt.Fprintf(&b, "\n```\n%s\n```\n", truncate(run.Error, 2000))
	}
	switch run.Status {
	case ledger.StatusDeferred:
		b.WriteString("\nAll backends were unavailable; the issue will be retried on a later cycle.\n")
	case ledger.StatusNeedsHuman:
		b.WriteString("\nReview rounds were exhausted without approval; a human should take over.\n")
	}
	return b.String()
}

// RunReport renders a markdown report for a single run, including its audit
// trail.
func RunReport(run ledger.Run, events []ledger.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %d — issue #%d: %s\n\n", run.ID, run.IssueNumber, run.IssueTitle)
	fmt.Fprintf(&b, "- Repo: %s\n", run.Repo)
	fmt.Fprintf(&b, "- Status: %s\n", run.Status)
	fmt.Fprintf(&b, "- Trigger: %s\n", run.Trigger)
	if run.Branch != "" {
		fmt.Fprintf(&b, "- Branch: %s\n", run.Branch)
	}
	if run.PRURL != "" {
		fmt.Fprintf(&b, "- PR: %s\n", run.PRURL)
	}
	if run.AgentName != "" {
		fmt.Fprintf(&b, "- Backend: %s\n", run.AgentName)
	}
	if run.TokensUsed > 0 {
		fmt.Fprintf(&b, "- Tokens: %d\n", run.TokensUsed)
	}
	fmt.Fprintf(&b, "- Created: %s\n", run.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Updated: %s\n", run.UpdatedAt.Format(time.RFC3339))
	if run.Error != "" {
		fmt.Fprintf(&b, "\n## Error\n\n```\n%s\n```\n", truncate(run.Error, 2000))
	}
	if len(events) > 0 {
		b.WriteString("\n## Timeline\n\n")
		for _, ev := range events {
			fmt.Fprintf(&b, "- %s `%s` %s\n", ev.CreatedAt.Format(time.RFC3339), ev.EventType, ev.Detail)
		}
	}
	if run.AgentOutput != "" {
		fmt.Fprintf(&b, "\n## Transcript\n\n```\n%s\n```\n", truncate(run.AgentOutput, maxTranscriptChars))
	}
	return b.String()
}

// IssueReport renders all runs for one issue, newest first.
func IssueReport(issueNumber int, runs []ledger.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Issue #%d — %d run(s)\n\n", issueNumber, len(runs))
	for _, run := range runs {
		fmt.Fprintf(&b, "## Run %d (%s)\n\n", run.ID, run.Status)
		fmt.Fprintf(&b, "- Trigger: %s\n- Created: %s\n", run.Trigger, run.CreatedAt.Format(time.RFC3339))
		if run.PRURL != "" {
			fmt.Fprintf(&b, "- PR: %s\n", run.PRURL)
		}
		if run.Error != "" {
			fmt.Fprintf(&b, "- Error: %s\n", truncate(run.Error, 300))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Summary renders a one-line-per-run overview of the whole ledger.
func Summary(runs []ledger.Run) string {
	var b strings.Builder
	counts := map[ledger.Status]int{}
	for _, run := range runs {
		counts[run.Status]++
	}
	fmt.Fprintf(&b, "# Jarvis runs — %d total\n\n", len(runs))
	for _, s := range []ledger.Status{
		ledger.StatusPending, ledger.StatusRunning, ledger.StatusSuccess,
		ledger.StatusFailed, ledger.StatusTimeout, ledger.StatusBlocked,
		ledger.StatusDeferred, ledger.StatusNeedsHuman,
	} {
		if counts[s] > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", s, counts[s])
		}
	}
	b.WriteString("\n")
	for _, run := range runs {
		fmt.Fprintf(&b, "- #%d issue=%d [%s] %s %s", run.ID, run.IssueNumber, run.Repo, run.Status, run.Trigger)
		if run.PRURL != "" {
			fmt.Fprintf(&b, " -> %s", run.PRURL)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// SessionStats summarizes one poll cycle.
type SessionStats struct {
	Started   time.Time
	Finished  time.Time
	Processed int
	Succeeded int
	Failed    int
	Deferred  int
	Tokens    int
}

// SessionReport renders the end-of-cycle summary.
func SessionReport(stats SessionStats) string {
	var b strings.Builder
	b.WriteString("# Session summary\n\n")
	fmt.Fprintf(&b, "- Started: %s\n", stats.Started.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Finished: %s\n", stats.Finished.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", stats.Finished.Sub(stats.Started).Round(time.Second))
	fmt.Fprintf(&b, "- Issues processed: %d\n", stats.Processed)
	fmt.Fprintf(&b, "- Succeeded: %d\n", stats.Succeeded)
	fmt.Fprintf(&b, "- Failed: %d\n", stats.Failed)
	fmt.Fprintf(&b, "- Deferred: %d\n", stats.Deferred)
	fmt.Fprintf(&b, "- Tokens used: %d\n", stats.Tokens)
	return b.String()
}

var slugPattern = regexp.MustCompile(`[^a-z0-9-]+`)

// Filename builds `<date>_issue-<n>_<repo-slug>.md`.
func Filename(t time.Time, issueNumber int, repo string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(repo), "-")
	slug = strings.Trim(slug, "-")
	return fmt.Sprintf("%s_issue-%d_%s.md", t.Format("2006-01-02"), issueNumber, slug)
}

// WriteFile writes a report under dir, creating it as needed, and returns
// the full path.
func WriteFile(dir, filename, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating reports dir: %w", err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// CommitReports commits and pushes the reports directory in repoDir.
// Everything here is best-effort: failures are logged, never returned, so a
// broken reports remote cannot fail a run.
func CommitReports(ctx context.Context, repoDir, reportsDir string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &shell.Runner{Dir: repoDir}
	gitTimeout := 120 * time.Second

	if _, err := r.Run(ctx, gitTimeout, "git", "add", reportsDir); err != nil {
		logger.Warn("staging reports failed", "error", err)
		return
	}
	if _, err := r.Run(ctx, gitTimeout, "git", "commit", "-m", "Add jarvis run reports"); err != nil {
		logger.Debug("no report changes to commit", "error", err)
		return
	}
	if _, err := r.Run(ctx, gitTimeout, "git", "push"); err != nil {
		logger.Warn("pushing reports failed", "error", err)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
