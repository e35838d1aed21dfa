package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarvishq/jarvis/internal/shell"
)

// initOrigin creates a bare "remote" repo plus a seed clone with one commit
// pushed to it, and returns the bare repo path.
func initOrigin(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	base := t.TempDir()

	bare := filepath.Join(base, "origin.git")
	seed := filepath.Join(base, "seed")
	r := &shell.Runner{Dir: base}
	if _, err := r.Run(ctx, 0, "git", "init", "--bare", "-b", "main", bare); err != nil {
		t.Fatalf("init bare: %v", err)
	}
	if _, err := r.Run(ctx, 0, "git", "clone", bare, seed); err != nil {
		t.Fatalf("clone seed: %v", err)
	}

	sr := &shell.Runner{Dir: seed}
	cmds := [][]string{
		{"git", "config", "user.email", "test@test.com"},
		{"git", "config", "user.name", "Test"},
		{"git", "symbolic-ref", "HEAD", "refs/heads/main"},
	}
	for _, c := range cmds {
		if _, err := sr.Run(ctx, 0, c[0], c[1:]...); err != nil {
			t.Fatalf("seed setup %v: %v", c, err)
		}
	}
	if err := os.WriteFile(filepath.Join(seed, "README.md"), []byte("# test\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := sr.Run(ctx, 0, "git", "add", "-A"); err != nil {
		t.Fatal(err)
	}
	if _, err := sr.Run(ctx, 0, "git", "commit", "-m", "initial"); err != nil {
		t.Fatal(err)
	}
	if _, err := sr.Run(ctx, 0, "git", "push", "-u", "origin", "main"); err != nil {
		t.Fatal(err)
	}
	return bare
}

func TestEnsureRepo_ClonesAndFetches(t *testing.T) {
	ctx := context.Background()
	origin := initOrigin(t)
	ws := New(t.TempDir(), "octocat", "hello", WithAuthor("Jarvis", "jarvis@bot.dev"))

	if err := ws.EnsureRepo(ctx, origin); err != nil {
		t.Fatalf("EnsureRepo (clone): %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.Root, "README.md")); err != nil {
		t.Fatalf("clone missing content: %v", err)
	}

	name, err := ws.Git.Run(ctx, 0, "git", "config", "user.name")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(name) != "Jarvis" {
		t.Errorf("user.name = %q, want Jarvis", strings.TrimSpace(name))
	}

	// Second call takes the fetch path.
	if err := ws.EnsureRepo(ctx, origin); err != nil {
		t.Fatalf("EnsureRepo (fetch): %v", err)
	}
}

func TestCreateBranch_StartsFromOriginDefault(t *testing.T) {
	ctx := context.Background()
	origin := initOrigin(t)
	ws := New(t.TempDir(), "o", "r")
	if err := ws.EnsureRepo(ctx, origin); err != nil {
		t.Fatal(err)
	}

	if err := ws.CreateBranch(ctx, "jarvis/issue-7", "main"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	out, err := ws.Git.Run(ctx, 0, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "jarvis/issue-7" {
		t.Errorf("HEAD = %q, want jarvis/issue-7", strings.TrimSpace(out))
	}

	// Recreating the branch discards previous commits on it.
	if err := os.WriteFile(filepath.Join(ws.Root, "stale.txt"), []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Git.Run(ctx, 0, "git", "add", "-A"); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Git.Run(ctx, 0, "git", "commit", "-m", "stale work"); err != nil {
		t.Fatal(err)
	}
	if err := ws.CreateBranch(ctx, "jarvis/issue-7", "main"); err != nil {
		t.Fatalf("CreateBranch (recreate): %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.Root, "stale.txt")); !os.IsNotExist(err) {
		t.Error("stale commit survived branch recreation")
	}
}

func TestHasChanges(t *testing.T) {
	ctx := context.Background()
	origin := initOrigin(t)
	ws := New(t.TempDir(), "o", "r")
	if err := ws.EnsureRepo(ctx, origin); err != nil {
		t.Fatal(err)
	}

	dirty, err := ws.HasChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if dirty {
		t.Error("fresh clone reported dirty")
	}

	if err := os.WriteFile(filepath.Join(ws.Root, "new.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	dirty, err = ws.HasChanges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !dirty {
		t.Error("untracked file not reported as a change")
	}
}

func TestCheckDiffLimits(t *testing.T) {
	ctx := context.Background()
	origin := initOrigin(t)
	ws := New(t.TempDir(), "o", "r")
	if err := ws.EnsureRepo(ctx, origin); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"a.go", "b.go", "c.lock"} {
		if err := os.WriteFile(filepath.Join(ws.Root, name), []byte("one\ntwo\nthree\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	breach, err := ws.CheckDiffLimits(ctx, DiffLimits{MaxFiles: 10, MaxLOC: 100})
	if err != nil {
		t.Fatal(err)
	}
	if breach != nil {
		t.Errorf("unexpected breach: %v", breach)
	}

	breach, err = ws.CheckDiffLimits(ctx, DiffLimits{MaxFiles: 2, MaxLOC: 100})
	if err != nil {
		t.Fatal(err)
	}
	if breach == nil {
		t.Fatal("expected file-count breach")
	}
	if breach.Files != 3 {
		t.Errorf("Files = %d, want 3", breach.Files)
	}

	// Ignored patterns are excluded from the count.
	breach, err = ws.CheckDiffLimits(ctx, DiffLimits{MaxFiles: 2, MaxLOC: 100, Ignore: []string{"**/*.lock", "*.lock"}})
	if err != nil {
		t.Fatal(err)
	}
	if breach != nil {
		t.Errorf("lockfile not ignored: %v", breach)
	}

	breach, err = ws.CheckDiffLimits(ctx, DiffLimits{MaxFiles: 10, MaxLOC: 5})
	if err != nil {
		t.Fatal(err)
	}
	if breach == nil {
		t.Fatal("expected LOC breach")
	}
	if breach.Lines != 9 {
		t.Errorf("Lines = %d, want 9", breach.Lines)
	}
}

func TestCommitAndPush(t *testing.T) {
	ctx := context.Background()
	origin := initOrigin(t)
	ws := New(t.TempDir(), "o", "r")
	if err := ws.EnsureRepo(ctx, origin); err != nil {
		t.Fatal(err)
	}
	if err := ws.CreateBranch(ctx, "jarvis/issue-1", "main"); err != nil {
		t.Fatal(err)
	}

	// Nothing to commit yet.
	committed, err := ws.CommitAndPush(ctx, "jarvis/issue-1", "empty")
	if err != nil {
		t.Fatalf("CommitAndPush (clean): %v", err)
	}
	if committed {
		t.Error("clean tree reported a commit")
	}

	if err := os.WriteFile(filepath.Join(ws.Root, "fix.go"), []byte("package fix\n"), 0644); err != nil {
		t.Fatal(err)
	}
	committed, err = ws.CommitAndPush(ctx, "jarvis/issue-1", "Fix the widget (#1)")
	if err != nil {
		t.Fatalf("CommitAndPush: %v", err)
	}
	if !committed {
		t.Fatal("expected a commit")
	}

	out, err := ws.Git.Run(ctx, 0, "git", "ls-remote", "--heads", "origin", "jarvis/issue-1")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("branch not pushed to origin")
	}
}

func TestDefaultBranch(t *testing.T) {
	ctx := context.Background()
	origin := initOrigin(t)
	ws := New(t.TempDir(), "o", "r")
	if err := ws.EnsureRepo(ctx, origin); err != nil {
		t.Fatal(err)
	}
	if got := ws.DefaultBranch(ctx); got != "main" {
		t.Errorf("DefaultBranch = %q, want main", got)
	}
}

func TestRunTestCmd(t *testing.T) {
	ctx := context.Background()
	ws := New(t.TempDir(), "o", "r")
	if err := os.MkdirAll(ws.Root, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := ws.RunTestCmd(ctx, "", time.Second)
	if err != nil {
		t.Fatalf("empty cmd: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("empty cmd exit = %d", res.ExitCode)
	}

	res, err = ws.RunTestCmd(ctx, "echo ok && exit 3", 30*time.Second)
	if err != nil {
		t.Fatalf("RunTestCmd: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "ok") {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestDiffIncludesPushedCommits(t *testing.T) {
	ctx := context.Background()
	origin := initOrigin(t)
	ws := New(t.TempDir(), "o", "r")
	if err := ws.EnsureRepo(ctx, origin); err != nil {
		t.Fatal(err)
	}
	defaultBranch := ws.DefaultBranch(ctx)
	if err := ws.CreateBranch(ctx, "jarvis/issue-2", defaultBranch); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(ws.Root, "fix.go"), []byte("package fix\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.CommitAndPush(ctx, "jarvis/issue-2", "Fix the widget (#2)"); err != nil {
		t.Fatal(err)
	}

	// The tree is clean now; the diff must still show the pushed commit.
	diff, err := ws.Diff(ctx, 10000)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diff, "fix.go") {
		t.Errorf("committed file missing from diff:\n%s", diff)
	}
	stat, err := ws.Diffstat(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stat, "fix.go") {
		t.Errorf("committed file missing from diffstat:\n%s", stat)
	}

	// Uncommitted edits show up alongside the pushed commit.
	if err := os.WriteFile(filepath.Join(ws.Root, "extra.go"), []byte("package fix\n"), 0644); err != nil {
		t.Fatal(err)
	}
	diff, err = ws.Diff(ctx, 10000)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diff, "fix.go") || !strings.Contains(diff, "extra.go") {
		t.Errorf("diff missing committed or uncommitted file:\n%s", diff)
	}
}

func TestDiffstatTruncates(t *testing.T) {
	ctx := context.Background()
	origin := initOrigin(t)
	ws := New(t.TempDir(), "o", "r")
	if err := ws.EnsureRepo(ctx, origin); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		name := filepath.Join(ws.Root, "f"+string(rune('a'+i))+".txt")
		if err := os.WriteFile(name, []byte("x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := ws.Diffstat(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "more lines") {
		t.Errorf("expected truncation marker, got:\n%s", out)
	}
}
