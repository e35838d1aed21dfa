package ledger

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateRun_StartsPending(t *testing.T) {
	db := openTestDB(t)

	run, err := db.CreateRun(42, "Fix the widget", TriggerPoll, "octocat/hello")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != StatusPending {
		t.Errorf("Status = %q, want %q", run.Status, StatusPending)
	}
	if run.IssueNumber != 42 || run.IssueTitle != "Fix the widget" || run.Repo != "octocat/hello" {
		t.Errorf("unexpected run fields: %+v", run)
	}
	if run.Trigger != TriggerPoll {
		t.Errorf("Trigger = %q, want %q", run.Trigger, TriggerPoll)
	}
	if run.ID == 0 {
		t.Error("ID not assigned")
	}
	if run.CreatedAt.IsZero() || run.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestUpdateRun_PatchesOnlyGivenFields(t *testing.T) {
	db := openTestDB(t)
	run, _ := db.CreateRun(1, "title", TriggerCLI, "o/r")

	updated, err := db.UpdateRun(run.ID, RunPatch{
		Status: Ptr(StatusRunning),
		Branch: Ptr("jarvis/issue-1"),
	})
	if err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	if updated.Status != StatusRunning {
		t.Errorf("Status = %q, want %q", updated.Status, StatusRunning)
	}
	if updated.Branch != "jarvis/issue-1" {
		t.Errorf("Branch = %q", updated.Branch)
	}

	// A second patch must not clobber the branch.
	updated, err = db.UpdateRun(run.ID, RunPatch{
		Status:     Ptr(StatusSuccess),
		PRURL:      Ptr("https://github.com/o/r/pull/7"),
		AgentName:  Ptr("claude"),
		TokensUsed: Ptr(1234),
	})
	if err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	if updated.Branch != "jarvis/issue-1" {
		t.Errorf("Branch clobbered: %q", updated.Branch)
	}
	if updated.PRURL != "https://github.com/o/r/pull/7" {
		t.Errorf("PRURL = %q", updated.PRURL)
	}
	if updated.AgentName != "claude" || updated.TokensUsed != 1234 {
		t.Errorf("agent fields = %q/%d", updated.AgentName, updated.TokensUsed)
	}
}

func TestUpdateRun_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.UpdateRun(999, RunPatch{Status: Ptr(StatusFailed)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetRun(123)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendAgentOutput_Accumulates(t *testing.T) {
	db := openTestDB(t)
	run, _ := db.CreateRun(2, "t", TriggerPoll, "o/r")

	if err := db.AppendAgentOutput(run.ID, "[backend:claude]\nfirst pass\n"); err != nil {
		t.Fatalf("AppendAgentOutput: %v", err)
	}
	if err := db.AppendAgentOutput(run.ID, "[backend:codex]\nsecond pass\n"); err != nil {
		t.Fatalf("AppendAgentOutput: %v", err)
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	want := "[backend:claude]\nfirst pass\n[backend:codex]\nsecond pass\n"
	if got.AgentOutput != want {
		t.Errorf("AgentOutput = %q, want %q", got.AgentOutput, want)
	}
}

func TestIsIssueClaimed(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, true},
		{StatusRunning, true},
		{StatusSuccess, true},
		{StatusNeedsHuman, true},
		{StatusFailed, false},
		{StatusTimeout, false},
		{StatusBlocked, false},
		{StatusDeferred, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			db := openTestDB(t)
			run, _ := db.CreateRun(5, "t", TriggerPoll, "o/r")
			if _, err := db.UpdateRun(run.ID, RunPatch{Status: Ptr(tt.status)}); err != nil {
				t.Fatalf("UpdateRun: %v", err)
			}

			claimed, err := db.IsIssueClaimed(5, "o/r")
			if err != nil {
				t.Fatalf("IsIssueClaimed: %v", err)
			}
			if claimed != tt.want {
				t.Errorf("IsIssueClaimed with %s = %v, want %v", tt.status, claimed, tt.want)
			}
		})
	}
}

func TestIsIssueClaimed_ScopedToRepo(t *testing.T) {
	db := openTestDB(t)
	db.CreateRun(9, "t", TriggerPoll, "octocat/hello")

	claimed, err := db.IsIssueClaimed(9, "octocat/world")
	if err != nil {
		t.Fatalf("IsIssueClaimed: %v", err)
	}
	if claimed {
		t.Error("claim leaked across repos")
	}

	claimed, _ = db.IsIssueClaimed(9, "octocat/hello")
	if !claimed {
		t.Error("expected claim in matching repo")
	}
}

func TestRunsForIssue_NewestFirst(t *testing.T) {
	db := openTestDB(t)
	first, _ := db.CreateRun(3, "a", TriggerPoll, "o/r")
	second, _ := db.CreateRun(3, "a", TriggerWebhook, "o/r")
	db.CreateRun(4, "b", TriggerPoll, "o/r")

	runs, err := db.RunsForIssue(3, "o/r")
	if err != nil {
		t.Fatalf("RunsForIssue: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Errorf("order = [%d, %d], want [%d, %d]", runs[0].ID, runs[1].ID, second.ID, first.ID)
	}
}

func TestAllRuns(t *testing.T) {
	db := openTestDB(t)
	db.CreateRun(1, "a", TriggerPoll, "o/r")
	db.CreateRun(2, "b", TriggerCLI, "o/r")

	runs, err := db.AllRuns()
	if err != nil {
		t.Fatalf("AllRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	run, _ := db.CreateRun(7, "persisted", TriggerPoll, "o/r")
	db.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	got, err := db2.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun after reopen: %v", err)
	}
	if got.IssueTitle != "persisted" {
		t.Errorf("IssueTitle = %q", got.IssueTitle)
	}
}

func TestEvents_AuditTrail(t *testing.T) {
	db := openTestDB(t)
	run, _ := db.CreateRun(11, "t", TriggerPoll, "o/r")

	ev1, err := db.LogEvent(run.ID, "status_change", "pending -> running")
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if ev1.ID == "" {
		t.Error("event id not assigned")
	}
	db.LogEvent(run.ID, "backend_invoked", "claude")
	db.LogEvent(run.ID, "verdict", "APPROVE")

	events, err := db.EventsForRun(run.ID)
	if err != nil {
		t.Fatalf("EventsForRun: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].EventType != "status_change" || events[2].EventType != "verdict" {
		t.Errorf("event order wrong: %+v", events)
	}
	for _, ev := range events {
		if ev.RunID != run.ID {
			t.Errorf("RunID = %d, want %d", ev.RunID, run.ID)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusSuccess, StatusFailed, StatusTimeout, StatusBlocked, StatusDeferred, StatusNeedsHuman}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}
