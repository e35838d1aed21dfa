package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jarvishq/jarvis/internal/github"
	"github.com/jarvishq/jarvis/internal/ledger"
	"github.com/jarvishq/jarvis/internal/report"
)

// PollOnce scans every configured repo for labeled issues and processes the
// eligible ones sequentially, stopping early when a budget is exhausted:
// session wall clock, token budget (within the warning buffer), or the
// per-cycle issue cap.
func (o *Orchestrator) PollOnce(ctx context.Context) (report.SessionStats, error) {
	o.resetCycleFlags()
	stats := report.SessionStats{Started: time.Now()}
	cycleStartTokens := o.TokensUsed()

	budgetSpent := func() (string, bool) {
		if o.cfg.SessionTimeout > 0 && time.Since(stats.Started) >= o.cfg.SessionTimeout {
			return "session timeout reached", true
		}
		if o.cfg.MaxTokensPerRun > 0 {
			used := o.TokensUsed()
			if o.cfg.TokenBudgetScope == "cycle" {
				used -= cycleStartTokens
			}
			if used >= o.cfg.MaxTokensPerRun-o.cfg.TokenWarningBuffer {
				return fmt.Sprintf("token budget exhausted (%d used)", used), true
			}
		}
		if o.cfg.MaxIssuesPerPoll > 0 && stats.Processed >= o.cfg.MaxIssuesPerPoll {
			return "issue cap reached", true
		}
		return "", false
	}

	var firstErr error
repos:
	for _, repoSlug := range o.cfg.TargetRepos {
		owner, repoName, ok := splitSlug(repoSlug)
		if !ok {
			o.logger.Error("skipping malformed repo", "repo", repoSlug)
			continue
		}

		issues, err := o.collectIssues(ctx, owner, repoName)
		if err != nil {
			o.logger.Error("listing issues failed", "repo", repoSlug, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, issue := range issues {
			if ctx.Err() != nil {
				break repos
			}
			if reason, spent := budgetSpent(); spent {
				o.logger.Info("stopping cycle", "reason", reason)
				break repos
			}
			if !o.ShouldProcess(issue) {
				continue
			}

			run, err := o.ProcessIssue(ctx, owner, repoName, issue, ledger.TriggerPoll)
			if errors.Is(err, ErrClaimed) {
				continue
			}
			if err != nil {
				o.logger.Error("processing issue failed", "issue", issue.Number, "repo", repoSlug, "error", err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			stats.Processed++
			switch run.Status {
			case ledger.StatusSuccess:
				stats.Succeeded++
			case ledger.StatusDeferred:
				stats.Deferred++
			default:
				stats.Failed++
			}
		}
	}

	stats.Finished = time.Now()
	stats.Tokens = o.TokensUsed() - cycleStartTokens
	o.logger.Info("poll cycle finished",
		"processed", stats.Processed,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"deferred", stats.Deferred,
		"tokens", stats.Tokens)
	return stats, firstErr
}

// collectIssues lists issues per trigger label and deduplicates by number,
// sorted ascending so older issues go first.
func (o *Orchestrator) collectIssues(ctx context.Context, owner, repoName string) ([]github.Issue, error) {
	seen := map[int]github.Issue{}
	for _, label := range o.cfg.TriggerLabels() {
		issues, err := o.scm.ListLabeledIssues(ctx, owner, repoName, label)
		if err != nil {
			return nil, err
		}
		for _, is := range issues {
			seen[is.Number] = is
		}
	}

	numbers := make([]int, 0, len(seen))
	for n := range seen {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	out := make([]github.Issue, 0, len(seen))
	for _, n := range numbers {
		out = append(out, seen[n])
	}
	return out, nil
}

// RunSingle fetches one issue and processes it immediately, bypassing label
// eligibility but not the claim check.
func (o *Orchestrator) RunSingle(ctx context.Context, repoSlug string, issueNumber int) (ledger.Run, error) {
	owner, repoName, ok := splitSlug(repoSlug)
	if !ok {
		return ledger.Run{}, fmt.Errorf("repo %q must be in owner/repo format", repoSlug)
	}

	issue, err := o.scm.GetIssue(ctx, owner, repoName, issueNumber)
	if err != nil {
		return ledger.Run{}, fmt.Errorf("fetching issue #%d: %w", issueNumber, err)
	}
	return o.ProcessIssue(ctx, owner, repoName, issue, ledger.TriggerCLI)
}

func splitSlug(slug string) (owner, repo string, ok bool) {
	owner, repo, found := strings.Cut(slug, "/")
	if !found || owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, true
}
