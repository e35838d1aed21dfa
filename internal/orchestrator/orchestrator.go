package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jarvishq/jarvis/internal/agent"
	"github.com/jarvishq/jarvis/internal/config"
	"github.com/jarvishq/jarvis/internal/github"
	"github.com/jarvishq/jarvis/internal/ledger"
	"github.com/jarvishq/jarvis/internal/report"
	"github.com/jarvishq/jarvis/internal/shell"
	"github.com/jarvishq/jarvis/internal/workspace"
)

// ErrClaimed is returned when an issue already has a run in a claiming
// status and must not be attempted again.
var ErrClaimed = errors.New("issue already claimed by an earlier run")

const (
	testOutputCap   = 12 * 1024
	diffCharCap     = 60 * 1024
	diffstatLineCap = 100
	errorCap        = 4000
)

// SCM is the subset of the GitHub client the orchestrator needs.
type SCM interface {
	ListLabeledIssues(ctx context.Context, owner, repo, label string) ([]github.Issue, error)
	GetIssue(ctx context.Context, owner, repo string, number int) (github.Issue, error)
	CreatePullRequest(ctx context.Context, owner, repo, head, base, title, body string) (github.PR, error)
	FindOpenPR(ctx context.Context, owner, repo, head, base string) (*github.PR, error)
	Comment(ctx context.Context, owner, repo string, number int, body string) error
	SwapLabels(ctx context.Context, owner, repo string, number int, remove, add []string) error
	CloneURL(owner, repo string) string
}

// Invoker dispatches prompts to coding-agent backends.
type Invoker interface {
	Invoke(ctx context.Context, backend, prompt, dir string, timeout time.Duration) (agent.Result, error)
	Has(name string) bool
}

// Repo is the per-checkout git surface the orchestrator drives.
type Repo interface {
	EnsureRepo(ctx context.Context, cloneURL string) error
	DefaultBranch(ctx context.Context) string
	CreateBranch(ctx context.Context, branch, defaultBranch string) error
	HasChanges(ctx context.Context) (bool, error)
	Diffstat(ctx context.Context, maxLines int) (string, error)
	Diff(ctx context.Context, maxChars int) (string, error)
	CheckDiffLimits(ctx context.Context, limits workspace.DiffLimits) (*workspace.LimitBreach, error)
	CommitAndPush(ctx context.Context, branch, message string) (bool, error)
	RunTestCmd(ctx context.Context, cmd string, timeout time.Duration) (shell.Result, error)
	Dir() string
}

// RepoFactory returns the Repo for one owner/repo pair.
type RepoFactory func(owner, repo string) Repo

// Orchestrator drives the full lifecycle of one issue: workspace, agent
// passes, review loop, PR, labels, ledger. One orchestrator owns one
// workspace directory; runs are processed sequentially.
type Orchestrator struct {
	cfg        config.Config
	db         *ledger.DB
	scm        SCM
	agent      Invoker
	workspaces RepoFactory
	logger     *slog.Logger

	// OnRunEvent, when set, receives every audit event as it is logged.
	// Used to stream run activity to websocket clients.
	OnRunEvent func(runID int64, eventType, detail string)

	mu                sync.Mutex
	recentUnavailable bool
	lifetimeTokens    int
	repoLocks         map[string]*sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator.
func New(cfg config.Config, db *ledger.DB, scm SCM, inv Invoker, workspaces RepoFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		db:         db,
		scm:        scm,
		agent:      inv,
		workspaces: workspaces,
		repoLocks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// RecentUnavailable reports whether any backend came back unavailable since
// the start of the current poll cycle. The poller shortens its sleep when
// this is set.
func (o *Orchestrator) RecentUnavailable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.recentUnavailable
}

// TokensUsed returns the tokens consumed since process start.
func (o *Orchestrator) TokensUsed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lifetimeTokens
}

func (o *Orchestrator) markUnavailable() {
	o.mu.Lock()
	o.recentUnavailable = true
	o.mu.Unlock()
}

func (o *Orchestrator) resetCycleFlags() {
	o.mu.Lock()
	o.recentUnavailable = false
	o.mu.Unlock()
}

// repoLock returns the mutex serializing runs against one repo's workspace
// checkout.
func (o *Orchestrator) repoLock(repoSlug string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.repoLocks[repoSlug]
	if !ok {
		lock = &sync.Mutex{}
		o.repoLocks[repoSlug] = lock
	}
	return lock
}

func (o *Orchestrator) addTokens(n int) {
	if n == 0 {
		return
	}
	o.mu.Lock()
	o.lifetimeTokens += n
	o.mu.Unlock()
}

// ShouldProcess reports whether the issue carries any trigger label.
func (o *Orchestrator) ShouldProcess(issue github.Issue) bool {
	triggers := map[string]bool{}
	for _, l := range o.cfg.TriggerLabels() {
		triggers[l] = true
	}
	for _, l := range issue.Labels {
		if triggers[l] {
			return true
		}
	}
	return false
}

// preferredBackend maps the issue's model-selection label to a backend
// name, empty when no model label is present.
func (o *Orchestrator) preferredBackend(issue github.Issue) string {
	byLabel := map[string]string{}
	for backend, label := range o.cfg.ModelLabels() {
		byLabel[label] = backend
	}
	for _, l := range issue.Labels {
		if backend, ok := byLabel[l]; ok {
			return backend
		}
	}
	return ""
}

// implementerOrder is the fallback chain for implementation passes: the
// label-preferred backend first, then the remaining configured backends.
func (o *Orchestrator) implementerOrder(issue github.Issue) []string {
	base := []string{"claude", "codex", "gemini"}
	var available []string
	for _, name := range base {
		if o.agent.Has(name) {
			available = append(available, name)
		}
	}
	return agent.Order(o.preferredBackend(issue), available)
}

func (o *Orchestrator) reviewerOrder() []string {
	var available []string
	for _, name := range o.cfg.ReviewerBackendOrder {
		if o.agent.Has(name) {
			available = append(available, name)
		}
	}
	return available
}

// event logs an audit entry and forwards it to OnRunEvent.
func (o *Orchestrator) event(runID int64, eventType, detail string) {
	if _, err := o.db.LogEvent(runID, eventType, detail); err != nil {
		o.logger.Warn("logging run event failed", "run_id", runID, "error", err)
	}
	if o.OnRunEvent != nil {
		o.OnRunEvent(runID, eventType, detail)
	}
}

func (o *Orchestrator) setStatus(runID int64, from, to ledger.Status) (ledger.Run, error) {
	run, err := o.db.UpdateRun(runID, ledger.RunPatch{Status: ledger.Ptr(to)})
	if err != nil {
		return run, err
	}
	o.event(runID, "status_change", fmt.Sprintf("%s -> %s", from, to))
	return run, nil
}

// ProcessIssue runs the full pipeline for one issue and returns the final
// run record. The returned error is non-nil only for claim conflicts and
// ledger failures; agent and git failures end in a terminal run status
// instead.
func (o *Orchestrator) ProcessIssue(ctx context.Context, owner, repoName string, issue github.Issue, trigger ledger.Trigger) (ledger.Run, error) {
	repoSlug := owner + "/" + repoName

	// One run at a time per repo: webhook deliveries, the poll loop, and
	// the CLI all share the same workspace checkout.
	lock := o.repoLock(repoSlug)
	lock.Lock()
	defer lock.Unlock()

	claimed, err := o.db.IsIssueClaimed(issue.Number, repoSlug)
	if err != nil {
		return ledger.Run{}, err
	}
	if claimed {
		o.logger.Info("issue already claimed, skipping", "issue", issue.Number, "repo", repoSlug)
		return ledger.Run{}, ErrClaimed
	}

	run, err := o.db.CreateRun(issue.Number, issue.Title, trigger, repoSlug)
	if err != nil {
		return ledger.Run{}, err
	}
	o.event(run.ID, "run_created", string(trigger))
	o.logger.Info("processing issue", "issue", issue.Number, "repo", repoSlug, "run_id", run.ID)

	final := o.processRun(ctx, owner, repoName, issue, run)
	o.writeRunReport(final)
	return final, nil
}

// processRun executes the state machine and always returns a run in a
// terminal status.
func (o *Orchestrator) processRun(ctx context.Context, owner, repoName string, issue github.Issue, run ledger.Run) ledger.Run {
	repoSlug := owner + "/" + repoName

	fail := func(status ledger.Status, cause string) ledger.Run {
		o.logger.Warn("run ended", "run_id", run.ID, "status", status, "cause", cause)
		updated, err := o.db.UpdateRun(run.ID, ledger.RunPatch{
			Status: ledger.Ptr(status),
			Error:  ledger.Ptr(truncate(cause, errorCap)),
		})
		if err != nil {
			o.logger.Error("recording terminal status failed", "run_id", run.ID, "error", err)
			updated = run
			updated.Status = status
			updated.Error = truncate(cause, errorCap)
		}
		o.event(run.ID, "status_change", fmt.Sprintf("%s -> %s", ledger.StatusRunning, status))
		if body := report.FailureComment(updated); body != "" {
			if err := o.scm.Comment(ctx, owner, repoName, issue.Number, body); err != nil {
				o.logger.Warn("posting failure comment failed", "issue", issue.Number, "error", err)
			}
		}
		return updated
	}

	if _, err := o.setStatus(run.ID, ledger.StatusPending, ledger.StatusRunning); err != nil {
		return fail(ledger.StatusFailed, fmt.Sprintf("updating run status: %v", err))
	}

	ws := o.workspaces(owner, repoName)
	if err := ws.EnsureRepo(ctx, o.scm.CloneURL(owner, repoName)); err != nil {
		return fail(ledger.StatusFailed, fmt.Sprintf("preparing workspace: %v", err))
	}

	defaultBranch := ws.DefaultBranch(ctx)
	branch := o.cfg.BranchPrefix + strconv.Itoa(issue.Number)
	if err := ws.CreateBranch(ctx, branch, defaultBranch); err != nil {
		return fail(ledger.StatusFailed, fmt.Sprintf("creating branch: %v", err))
	}
	if _, err := o.db.UpdateRun(run.ID, ledger.RunPatch{Branch: ledger.Ptr(branch)}); err != nil {
		return fail(ledger.StatusFailed, fmt.Sprintf("recording branch: %v", err))
	}
	o.event(run.ID, "branch_created", branch)

	// Implementation pass with backend fallback.
	prompt, err := agent.RenderImplement(agent.ImplementData{
		Repo:    repoSlug,
		Number:  issue.Number,
		Title:   issue.Title,
		Body:    issue.Body,
		TestCmd: o.cfg.TestCmd,
	}, o.cfg.PromptsDir)
	if err != nil {
		return fail(ledger.StatusFailed, fmt.Sprintf("rendering prompt: %v", err))
	}

	res, sawUnavailable, timedOut := o.invokeChain(ctx, run.ID, o.implementerOrder(issue), prompt, ws.Dir())
	if timedOut {
		return fail(ledger.StatusTimeout, "implementation pass exceeded the issue timeout")
	}
	if res == nil {
		if sawUnavailable {
			return fail(ledger.StatusDeferred, "all backends unavailable")
		}
		return fail(ledger.StatusFailed, "all backends failed")
	}

	dirty, err := ws.HasChanges(ctx)
	if err != nil {
		return fail(ledger.StatusFailed, fmt.Sprintf("checking for changes: %v", err))
	}
	if !dirty {
		if sawUnavailable {
			return fail(ledger.StatusDeferred, "agent produced no file changes after capacity fallbacks")
		}
		return fail(ledger.StatusFailed, "agent produced no file changes")
	}

	if _, err := o.db.UpdateRun(run.ID, ledger.RunPatch{AgentName: ledger.Ptr(res.Backend)}); err != nil {
		o.logger.Warn("recording backend name failed", "run_id", run.ID, "error", err)
	}

	breach, err := ws.CheckDiffLimits(ctx, workspace.DiffLimits{
		MaxFiles: o.cfg.MaxDiffFiles,
		MaxLOC:   o.cfg.MaxDiffLOC,
		Ignore:   o.cfg.DiffIgnore,
	})
	if err != nil {
		return fail(ledger.StatusFailed, fmt.Sprintf("checking diff limits: %v", err))
	}
	if breach != nil {
		o.event(run.ID, "diff_limit_breach", breach.String())
		return fail(ledger.StatusBlocked, breach.String())
	}

	title := report.PRTitle(issue.Number, issue.Title)
	committed, err := ws.CommitAndPush(ctx, branch, title)
	if err != nil {
		return fail(ledger.StatusFailed, fmt.Sprintf("committing changes: %v", err))
	}
	if !committed {
		return fail(ledger.StatusFailed, "nothing to commit after implementation pass")
	}
	o.event(run.ID, "pushed", branch)

	current, err := o.db.GetRun(run.ID)
	if err != nil {
		current = run
	}

	pr, err := o.ensurePR(ctx, owner, repoName, branch, defaultBranch, title,
		report.PRBody(issue.Number, res.Backend, current.AgentOutput))
	if err != nil {
		return fail(ledger.StatusFailed, fmt.Sprintf("opening pull request: %v", err))
	}
	if _, err := o.db.UpdateRun(run.ID, ledger.RunPatch{PRURL: ledger.Ptr(pr.HTMLURL)}); err != nil {
		o.logger.Warn("recording PR url failed", "run_id", run.ID, "error", err)
	}
	o.event(run.ID, "pr_opened", pr.HTMLURL)

	return o.reviewLoop(ctx, owner, repoName, issue, run.ID, ws, branch, pr, fail)
}

// invokeChain tries each backend in order until one completes. It returns
// the first OK result, whether any backend was unavailable, and whether an
// invocation hit the hard wall-clock timeout.
func (o *Orchestrator) invokeChain(ctx context.Context, runID int64, order []string, prompt, dir string) (*agent.Result, bool, bool) {
	sawUnavailable := false
	for _, backend := range order {
		if ctx.Err() != nil {
			return nil, sawUnavailable, false
		}
		o.event(runID, "backend_invoked", backend)
		res, err := o.agent.Invoke(ctx, backend, prompt, dir, o.cfg.IssueTimeout)
		if err != nil {
			o.logger.Warn("backend spawn failed", "backend", backend, "error", err)
			continue
		}

		o.addTokens(res.Tokens())
		if res.Tokens() > 0 {
			if run, err := o.db.GetRun(runID); err == nil {
				if _, err := o.db.UpdateRun(runID, ledger.RunPatch{TokensUsed: ledger.Ptr(run.TokensUsed + res.Tokens())}); err != nil {
					o.logger.Warn("recording token usage failed", "run_id", runID, "error", err)
				}
			}
		}
		if err := o.db.AppendAgentOutput(runID, fmt.Sprintf("[backend:%s]\n%s\n", res.Backend, res.Output)); err != nil {
			o.logger.Warn("appending transcript failed", "run_id", runID, "error", err)
		}

		if res.TimedOut {
			o.event(runID, "backend_timeout", backend)
			return nil, sawUnavailable, true
		}

		switch res.Outcome {
		case agent.OutcomeOK:
			o.event(runID, "backend_ok", backend)
			return &res, sawUnavailable, false
		case agent.OutcomeUnavailable:
			sawUnavailable = true
			o.markUnavailable()
			o.event(runID, "backend_unavailable", backend)
		default:
			o.event(runID, "backend_fatal", backend)
			return nil, sawUnavailable, false
		}
	}
	return nil, sawUnavailable, false
}

func (o *Orchestrator) ensurePR(ctx context.Context, owner, repoName, branch, base, title, body string) (github.PR, error) {
	if existing, err := o.scm.FindOpenPR(ctx, owner, repoName, branch, base); err == nil && existing != nil {
		return *existing, nil
	}
	return o.scm.CreatePullRequest(ctx, owner, repoName, branch, base, title, body)
}

// reviewLoop runs up to ReviewRounds rounds of test + review + feedback and
// ends the run in SUCCESS or NEEDS_HUMAN.
func (o *Orchestrator) reviewLoop(ctx context.Context, owner, repoName string, issue github.Issue, runID int64, ws Repo, branch string, pr github.PR, fail func(ledger.Status, string) ledger.Run) ledger.Run {
	repoSlug := owner + "/" + repoName
	lastFeedback := ""

	for round := 1; round <= o.cfg.ReviewRounds; round++ {
		o.event(runID, "review_round", strconv.Itoa(round))

		testRes, err := ws.RunTestCmd(ctx, o.cfg.TestCmd, o.cfg.TestTimeout)
		if err != nil {
			return fail(ledger.StatusFailed, fmt.Sprintf("running tests: %v", err))
		}
		testOutput := ""
		testsFailed := false
		if o.cfg.TestCmd != "" {
			testOutput = truncate(testRes.Combined(), testOutputCap)
			testsFailed = testRes.ExitCode != 0 || testRes.TimedOut
			if testsFailed {
				o.event(runID, "tests_failed", fmt.Sprintf("exit=%d", testRes.ExitCode))
			} else {
				o.event(runID, "tests_passed", "")
			}
		}

		diffstat, _ := ws.Diffstat(ctx, diffstatLineCap)
		diff, _ := ws.Diff(ctx, diffCharCap)

		reviewPrompt, err := agent.RenderReview(agent.ReviewData{
			Repo:       repoSlug,
			Number:     issue.Number,
			Title:      issue.Title,
			Body:       issue.Body,
			Diffstat:   diffstat,
			Diff:       diff,
			TestOutput: testOutput,
		}, o.cfg.PromptsDir)
		if err != nil {
			return fail(ledger.StatusFailed, fmt.Sprintf("rendering review prompt: %v", err))
		}

		verdict, reviewBody := o.review(ctx, runID, reviewPrompt, ws.Dir())
		if testsFailed && verdict == agent.VerdictApprove {
			// A failing test suite overrules an approving reviewer.
			verdict = agent.VerdictChanges
			reviewBody = "Tests are failing:\n\n" + testOutput
		}
		o.event(runID, "verdict", string(verdict))

		if err := o.scm.Comment(ctx, owner, repoName, pr.Number,
			fmt.Sprintf("Review round %d: %s\n\n%s", round, verdict, truncate(reviewBody, 4000))); err != nil {
			o.logger.Warn("posting review comment failed", "pr", pr.Number, "error", err)
		}

		if verdict == agent.VerdictApprove {
			return o.finishSuccess(ctx, owner, repoName, issue, runID, pr, round-1, fail)
		}

		lastFeedback = reviewBody
		if round == o.cfg.ReviewRounds {
			break
		}

		feedbackPrompt, err := agent.RenderFeedback(agent.FeedbackData{
			Repo:       repoSlug,
			Number:     issue.Number,
			Title:      issue.Title,
			Body:       issue.Body,
			Feedback:   reviewBody,
			TestOutput: testOutput,
			TestCmd:    o.cfg.TestCmd,
		}, o.cfg.PromptsDir)
		if err != nil {
			return fail(ledger.StatusFailed, fmt.Sprintf("rendering feedback prompt: %v", err))
		}

		res, sawUnavailable, timedOut := o.invokeChain(ctx, runID, o.implementerOrder(issue), feedbackPrompt, ws.Dir())
		if timedOut {
			return fail(ledger.StatusTimeout, "feedback pass exceeded the issue timeout")
		}
		if res == nil {
			if sawUnavailable {
				return fail(ledger.StatusDeferred, "no backend available for the feedback pass")
			}
			return fail(ledger.StatusFailed, "all backends failed during the feedback pass")
		}

		dirty, err := ws.HasChanges(ctx)
		if err != nil {
			return fail(ledger.StatusFailed, fmt.Sprintf("checking for changes: %v", err))
		}
		if dirty {
			msg := fmt.Sprintf("Address review feedback (round %d) (#%d)", round, issue.Number)
			if _, err := ws.CommitAndPush(ctx, branch, msg); err != nil {
				return fail(ledger.StatusFailed, fmt.Sprintf("pushing feedback pass: %v", err))
			}
			o.event(runID, "pushed", fmt.Sprintf("feedback round %d", round))
		} else if sawUnavailable {
			return fail(ledger.StatusDeferred, "feedback pass produced no file changes after capacity fallbacks")
		}
	}

	return o.finishNeedsHuman(ctx, owner, repoName, issue, runID, lastFeedback, fail)
}

// review runs the reviewer fallback chain. When every reviewer is
// unavailable it synthesizes a changes-requested verdict so the change is
// never merged unreviewed.
func (o *Orchestrator) review(ctx context.Context, runID int64, prompt, dir string) (agent.Verdict, string) {
	for _, backend := range o.reviewerOrder() {
		if ctx.Err() != nil {
			break
		}
		o.event(runID, "reviewer_invoked", backend)
		res, err := o.agent.Invoke(ctx, backend, prompt, dir, o.cfg.IssueTimeout)
		if err != nil {
			o.logger.Warn("reviewer spawn failed", "backend", backend, "error", err)
			continue
		}
		o.addTokens(res.Tokens())
		if res.Outcome == agent.OutcomeOK {
			return agent.ParseVerdict(res.Output), res.Output
		}
		if res.Outcome == agent.OutcomeUnavailable || res.TimedOut {
			o.markUnavailable()
		}
		o.event(runID, "reviewer_"+res.Outcome.String(), backend)
	}
	return agent.VerdictChanges, "No reviewer backend was available; treating the round as changes requested."
}

func (o *Orchestrator) finishSuccess(ctx context.Context, owner, repoName string, issue github.Issue, runID int64, pr github.PR, rounds int, fail func(ledger.Status, string) ledger.Run) ledger.Run {
	if err := o.scm.SwapLabels(ctx, owner, repoName, issue.Number,
		[]string{o.cfg.IssueLabel, o.cfg.ReadyLabel}, []string{o.cfg.DoneLabel}); err != nil {
		o.logger.Warn("swapping labels failed", "issue", issue.Number, "error", err)
	}
	if err := o.scm.Comment(ctx, owner, repoName, issue.Number, report.SuccessComment(pr.HTMLURL, rounds)); err != nil {
		o.logger.Warn("posting success comment failed", "issue", issue.Number, "error", err)
	}

	run, err := o.db.UpdateRun(runID, ledger.RunPatch{Status: ledger.Ptr(ledger.StatusSuccess)})
	if err != nil {
		return fail(ledger.StatusFailed, fmt.Sprintf("recording success: %v", err))
	}
	o.event(runID, "status_change", fmt.Sprintf("%s -> %s", ledger.StatusRunning, ledger.StatusSuccess))
	o.logger.Info("run succeeded", "run_id", runID, "pr", run.PRURL)
	return run
}

func (o *Orchestrator) finishNeedsHuman(ctx context.Context, owner, repoName string, issue github.Issue, runID int64, lastFeedback string, fail func(ledger.Status, string) ledger.Run) ledger.Run {
	remove := append(o.cfg.TriggerLabels(), o.cfg.ReadyLabel)
	if err := o.scm.SwapLabels(ctx, owner, repoName, issue.Number, remove, []string{o.cfg.NeedsHumanLabel}); err != nil {
		o.logger.Warn("swapping labels failed", "issue", issue.Number, "error", err)
	}
	body := "Review rounds exhausted without approval. Last feedback:\n\n" + truncate(lastFeedback, 4000)
	if err := o.scm.Comment(ctx, owner, repoName, issue.Number, body); err != nil {
		o.logger.Warn("posting needs-human comment failed", "issue", issue.Number, "error", err)
	}

	run, err := o.db.UpdateRun(runID, ledger.RunPatch{
		Status: ledger.Ptr(ledger.StatusNeedsHuman),
		Error:  ledger.Ptr(truncate(lastFeedback, errorCap)),
	})
	if err != nil {
		return fail(ledger.StatusFailed, fmt.Sprintf("recording needs_human: %v", err))
	}
	o.event(runID, "status_change", fmt.Sprintf("%s -> %s", ledger.StatusRunning, ledger.StatusNeedsHuman))
	return run
}

func (o *Orchestrator) writeRunReport(run ledger.Run) {
	events, err := o.db.EventsForRun(run.ID)
	if err != nil {
		o.logger.Warn("loading run events failed", "run_id", run.ID, "error", err)
	}
	dir := o.cfg.ReportsDir
	if o.cfg.JarvisRepoDir != "" {
		dir = filepath.Join(o.cfg.JarvisRepoDir, o.cfg.ReportsDir)
	}
	name := report.Filename(time.Now(), run.IssueNumber, run.Repo)
	if _, err := report.WriteFile(dir, name, report.RunReport(run, events)); err != nil {
		o.logger.Warn("writing run report failed", "run_id", run.ID, "error", err)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... (truncated)"
}
