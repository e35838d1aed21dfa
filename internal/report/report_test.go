package report

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jarvishq/jarvis/internal/ledger"
)

func TestPRBody_ReferencesIssueAndTruncates(t *testing.T) {
	long := strings.Repeat("x", maxTranscriptChars+500)
	body := PRBody(42, "claude", long)

	if !strings.Contains(body, "Closes #42") {
		t.Error("missing closing reference")
	}
	if !strings.Contains(body, "claude") {
		t.Error("missing backend name")
	}
	if !strings.Contains(body, "(truncated)") {
		t.Error("long transcript not truncated")
	}
	if len(body) > maxTranscriptChars+1000 {
		t.Errorf("body too long: %d chars", len(body))
	}
}

func TestPRTitle(t *testing.T) {
	if got := PRTitle(7, "Fix the widget"); got != "Fix the widget (#7)" {
		t.Errorf("PRTitle = %q", got)
	}
}

func TestFailureComment_PerStatus(t *testing.T) {
	run := ledger.Run{ID: 3, Status: ledger.StatusDeferred, Error: "all backends unavailable"}
	c := FailureComment(run)
	if !strings.Contains(c, "deferred") || !strings.Contains(c, "retried on a later cycle") {
		t.Errorf("deferred comment = %q", c)
	}

	run.Status = ledger.StatusNeedsHuman
	c = FailureComment(run)
	if !strings.Contains(c, "human should take over") {
		t.Errorf("needs_human comment = %q", c)
	}
}

func TestRunReport_IncludesTimeline(t *testing.T) {
	run := ledger.Run{
		ID: 1, IssueNumber: 7, IssueTitle: "Fix the widget", Repo: "o/r",
		Status: ledger.StatusSuccess, Trigger: ledger.TriggerPoll,
		Branch: "jarvis/issue-7", PRURL: "https://github.com/o/r/pull/9",
		AgentName: "claude", TokensUsed: 555,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	events := []ledger.Event{
		{EventType: "status_change", Detail: "pending -> running", CreatedAt: time.Now()},
		{EventType: "verdict", Detail: "APPROVE", CreatedAt: time.Now()},
	}

	out := RunReport(run, events)
	for _, want := range []string{"issue #7", "jarvis/issue-7", "pull/9", "claude", "555", "status_change", "APPROVE"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestSummary_CountsByStatus(t *testing.T) {
	runs := []ledger.Run{
		{ID: 1, Status: ledger.StatusSuccess},
		{ID: 2, Status: ledger.StatusSuccess},
		{ID: 3, Status: ledger.StatusFailed},
	}
	out := Summary(runs)
	if !strings.Contains(out, "success: 2") || !strings.Contains(out, "failed: 1") {
		t.Errorf("summary counts wrong:\n%s", out)
	}
	if !strings.Contains(out, "3 total") {
		t.Errorf("summary total wrong:\n%s", out)
	}
}

func TestFilename(t *testing.T) {
	ts := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	got := Filename(ts, 7, "OctoCat/Hello_World")
	want := "2026-08-24_issue-7_octocat-hello-world.md"
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir() + "/reports/nested"
	path, err := WriteFile(dir, "r.md", "# hello")
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# hello" {
		t.Errorf("content = %q", data)
	}
}

func TestSessionReport(t *testing.T) {
	start := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	out := SessionReport(SessionStats{
		Started: start, Finished: start.Add(90 * time.Second),
		Processed: 3, Succeeded: 2, Failed: 1, Tokens: 42000,
	})
	for _, want := range []string{"1m30s", "processed: 3", "Succeeded: 2", "Failed: 1", "42000"} {
		if !strings.Contains(out, want) {
			t.Errorf("session report missing %q:\n%s", want, out)
		}
	}
}
