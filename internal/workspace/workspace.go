package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jarvishq/jarvis/internal/shell"
)

const (
	cloneTimeout = 600 * time.Second
	gitTimeout   = 120 * time.Second
)

// Workspace is one repository checkout under the workspace directory. All
// git operations for a run happen here; the orchestrator serializes access
// so only one run touches a workspace at a time.
type Workspace struct {
	Root string
	Git  *shell.Runner

	AuthorName  string
	AuthorEmail string

	logger *slog.Logger

	defaultBranch string
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// WithAuthor sets the git identity used for commits.
func WithAuthor(name, email string) Option {
	return func(w *Workspace) {
		w.AuthorName = name
		w.AuthorEmail = email
	}
}

// New returns a Workspace rooted at baseDir/<owner>-<repo>.
func New(baseDir, owner, repo string, opts ...Option) *Workspace {
	root := filepath.Join(baseDir, owner+"-"+repo)
	w := &Workspace{
		Root:        root,
		Git:         &shell.Runner{Dir: root},
		AuthorName:  "Jarvis",
		AuthorEmail: "jarvis@bot.dev",
	}
	for _, o := range opts {
		o(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Dir returns the checkout root.
func (w *Workspace) Dir() string { return w.Root }

// EnsureRepo makes sure a clean clone exists at Root. An existing checkout
// is fetched and pruned; otherwise the repo is cloned fresh. The git
// identity is configured locally either way.
func (w *Workspace) EnsureRepo(ctx context.Context, cloneURL string) error {
	if _, err := os.Stat(filepath.Join(w.Root, ".git")); err == nil {
		w.logger.Debug("fetching existing checkout", "root", w.Root)
		if _, err := w.Git.Run(ctx, gitTimeout, "git", "fetch", "origin", "--prune"); err != nil {
			return fmt.Errorf("fetching origin: %w", err)
		}
	} else {
		w.logger.Info("cloning repository", "root", w.Root)
		if err := os.MkdirAll(filepath.Dir(w.Root), 0o755); err != nil {
			return fmt.Errorf("creating workspace dir: %w", err)
		}
		parent := &shell.Runner{Dir: filepath.Dir(w.Root)}
		if _, err := parent.Run(ctx, cloneTimeout, "git", "clone", cloneURL, w.Root); err != nil {
			return fmt.Errorf("cloning: %w", err)
		}
	}

	if _, err := w.Git.Run(ctx, gitTimeout, "git", "config", "user.name", w.AuthorName); err != nil {
		return fmt.Errorf("setting git user.name: %w", err)
	}
	if _, err := w.Git.Run(ctx, gitTimeout, "git", "config", "user.email", w.AuthorEmail); err != nil {
		return fmt.Errorf("setting git user.email: %w", err)
	}
	return nil
}

// DefaultBranch asks the remote which branch HEAD points at, falling back
// to main when the remote cannot be reached. The answer is remembered and
// used as the diff base for review diffs.
func (w *Workspace) DefaultBranch(ctx context.Context) string {
	out, err := w.Git.Run(ctx, gitTimeout, "git", "remote", "show", "origin")
	if err != nil {
		w.logger.Warn("detecting default branch failed, assuming main", "error", err)
		w.defaultBranch = "main"
		return "main"
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "HEAD branch:"); ok {
			w.defaultBranch = strings.TrimSpace(after)
			return w.defaultBranch
		}
	}
	w.defaultBranch = "main"
	return "main"
}

// diffBase returns the ref review diffs are computed against: the merge
// base with origin's default branch, so commits already pushed on the work
// branch still show up. Falls back to HEAD before the default branch is
// known.
func (w *Workspace) diffBase(ctx context.Context) string {
	if w.defaultBranch == "" {
		return "HEAD"
	}
	out, err := w.Git.Run(ctx, gitTimeout, "git", "merge-base", "origin/"+w.defaultBranch, "HEAD")
	if err != nil {
		return "HEAD"
	}
	if base := strings.TrimSpace(out); base != "" {
		return base
	}
	return "HEAD"
}

// CreateBranch starts a fresh branch from origin/<defaultBranch>. Stale
// local and remote copies of the branch are deleted first, best-effort, so
// a retried issue never inherits a previous attempt's commits.
func (w *Workspace) CreateBranch(ctx context.Context, branch, defaultBranch string) error {
	w.Git.Run(ctx, gitTimeout, "git", "checkout", defaultBranch)
	if _, err := w.Git.Run(ctx, gitTimeout, "git", "reset", "--hard", "origin/"+defaultBranch); err != nil {
		return fmt.Errorf("resetting %s: %w", defaultBranch, err)
	}
	w.Git.Run(ctx, gitTimeout, "git", "branch", "-D", branch)
	w.Git.Run(ctx, gitTimeout, "git", "push", "origin", "--delete", branch)

	if _, err := w.Git.Run(ctx, gitTimeout, "git", "checkout", "-b", branch, "origin/"+defaultBranch); err != nil {
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return nil
}

// HasChanges reports whether the working tree has any uncommitted changes,
// including untracked files.
func (w *Workspace) HasChanges(ctx context.Context) (bool, error) {
	out, err := w.Git.Run(ctx, gitTimeout, "git", "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("checking status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// Diffstat summarizes everything the branch changes relative to origin's
// default branch, committed or not, truncated to maxLines lines.
func (w *Workspace) Diffstat(ctx context.Context, maxLines int) (string, error) {
	w.Git.Run(ctx, gitTimeout, "git", "add", "-A", "--intent-to-add")
	out, err := w.Git.Run(ctx, gitTimeout, "git", "diff", "--stat", w.diffBase(ctx))
	if err != nil {
		return "", fmt.Errorf("diffstat: %w", err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = append(lines[:maxLines], fmt.Sprintf("... (%d more lines)", len(lines)-maxLines))
	}
	return strings.Join(lines, "\n"), nil
}

// Diff returns the full diff of the branch, committed and uncommitted,
// against origin's default branch, truncated to maxChars with a marker when
// it exceeds the limit.
func (w *Workspace) Diff(ctx context.Context, maxChars int) (string, error) {
	w.Git.Run(ctx, gitTimeout, "git", "add", "-A", "--intent-to-add")
	out, err := w.Git.Run(ctx, gitTimeout, "git", "diff", w.diffBase(ctx))
	if err != nil {
		return "", fmt.Errorf("diff: %w", err)
	}
	if maxChars > 0 && len(out) > maxChars {
		return out[:maxChars] + "\n... (diff truncated)", nil
	}
	return out, nil
}

// DiffLimits is the size gate for agent-produced changes.
type DiffLimits struct {
	MaxFiles int
	MaxLOC   int
	// Ignore lists glob patterns for paths excluded from the count,
	// lockfiles and generated code typically.
	Ignore []string
}

// LimitBreach describes a diff that exceeded its limits.
type LimitBreach struct {
	Files int
	Lines int
	Limit DiffLimits
}

func (b *LimitBreach) String() string {
	return fmt.Sprintf("diff touches %d files / %d lines (limits: %d files, %d lines)",
		b.Files, b.Lines, b.Limit.MaxFiles, b.Limit.MaxLOC)
}

// CheckDiffLimits counts changed files and lines via git numstat and
// returns a breach description when either limit is exceeded, nil when
// within bounds. A zero limit disables that check.
func (w *Workspace) CheckDiffLimits(ctx context.Context, limits DiffLimits) (*LimitBreach, error) {
	w.Git.Run(ctx, gitTimeout, "git", "add", "-A", "--intent-to-add")
	out, err := w.Git.Run(ctx, gitTimeout, "git", "diff", "--numstat", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("diff numstat: %w", err)
	}

	files, lines := 0, 0
	for _, row := range strings.Split(strings.TrimSpace(out), "\n") {
		if row == "" {
			continue
		}
		fields := strings.Fields(row)
		if len(fields) < 3 {
			continue
		}
		path := fields[len(fields)-1]
		if ignored(path, limits.Ignore) {
			continue
		}
		files++
		// Binary files report "-" for both counts.
		if add, err := strconv.Atoi(fields[0]); err == nil {
			lines += add
		}
		if del, err := strconv.Atoi(fields[1]); err == nil {
			lines += del
		}
	}

	if (limits.MaxFiles > 0 && files > limits.MaxFiles) || (limits.MaxLOC > 0 && lines > limits.MaxLOC) {
		return &LimitBreach{Files: files, Lines: lines, Limit: limits}, nil
	}
	return nil, nil
}

func ignored(path string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, path); err == nil && ok {
			return true
		}
	}
	return false
}

// CommitAndPush stages everything, commits with the configured identity,
// and pushes the branch. Returns false without error when there was
// nothing to commit.
func (w *Workspace) CommitAndPush(ctx context.Context, branch, message string) (bool, error) {
	if _, err := w.Git.Run(ctx, gitTimeout, "git", "add", "-A"); err != nil {
		return false, fmt.Errorf("git add: %w", err)
	}

	if _, err := w.Git.Run(ctx, gitTimeout, "git", "commit", "-m", message); err != nil {
		var exitErr *shell.ExitError
		if errors.As(err, &exitErr) && exitErr.Code == 1 {
			// nothing staged
			return false, nil
		}
		return false, fmt.Errorf("git commit: %w", err)
	}

	if _, err := w.Git.Run(ctx, gitTimeout, "git", "push", "-u", "origin", branch); err != nil {
		return false, fmt.Errorf("git push: %w", err)
	}
	return true, nil
}

// RunTestCmd runs the configured test command through a shell in the
// workspace root. An empty command is a no-op success. The Result carries
// exit code and output even on failure; err is reserved for spawn
// problems.
func (w *Workspace) RunTestCmd(ctx context.Context, cmd string, timeout time.Duration) (shell.Result, error) {
	if strings.TrimSpace(cmd) == "" {
		return shell.Result{}, nil
	}
	w.logger.Info("running tests", "cmd", cmd)
	return w.Git.Capture(ctx, timeout, "", "bash", "-lc", cmd)
}
