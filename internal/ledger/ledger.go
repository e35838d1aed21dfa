package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("run not found")

// Status is the lifecycle state of a Run. It advances from pending through
// running to exactly one terminal status and never moves afterwards.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
	StatusBlocked    Status = "blocked"
	StatusDeferred   Status = "deferred"
	StatusNeedsHuman Status = "needs_human"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusTimeout, StatusBlocked, StatusDeferred, StatusNeedsHuman:
		return true
	}
	return false
}

// claimStatuses are the statuses that prevent another attempt on the same
// issue. deferred/failed/timeout/blocked are intentionally absent so the
// next poll cycle can retry.
var claimStatuses = []Status{StatusPending, StatusRunning, StatusSuccess, StatusNeedsHuman}

// Trigger records what started a run.
type Trigger string

const (
	TriggerPoll    Trigger = "poll"
	TriggerCLI     Trigger = "cli"
	TriggerWebhook Trigger = "webhook"
)

// Run is one attempt by the orchestrator on one issue.
type Run struct {
	ID          int64
	IssueNumber int
	IssueTitle  string
	Repo        string
	Status      Status
	Trigger     Trigger
	Branch      string
	PRURL       string
	Error       string
	AgentOutput string
	AgentName   string
	TokensUsed  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Event is one append-only audit entry for a run: state transitions,
// backend invocations, review verdicts.
type Event struct {
	ID        string
	RunID     int64
	EventType string
	Detail    string
	CreatedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_number INTEGER NOT NULL,
	issue_title  TEXT NOT NULL,
	repo         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	trigger      TEXT NOT NULL,
	branch       TEXT NOT NULL DEFAULT '',
	pr_url       TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	agent_output TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_events (
	id         TEXT PRIMARY KEY,
	run_id     INTEGER NOT NULL REFERENCES runs(id),
	event_type TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// DB is the persistent run ledger, backed by a single sqlite file. Writes
// are serialized by sqlite; readers see committed state.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if needed) the ledger at path and applies schema
// migrations. Migrations are additive only: new columns get safe defaults,
// nothing is renamed or dropped.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}

	// Migrations for existing databases. ALTER TABLE ADD COLUMN errors are
	// silently ignored (column already exists).
	conn.Exec(`ALTER TABLE runs ADD COLUMN agent_name TEXT NOT NULL DEFAULT ''`)
	conn.Exec(`ALTER TABLE runs ADD COLUMN tokens_used INTEGER NOT NULL DEFAULT 0`)

	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

const runColumns = `id, issue_number, issue_title, repo, status, trigger, branch,
	pr_url, error, agent_output, agent_name, tokens_used, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.IssueNumber, &r.IssueTitle, &r.Repo, &r.Status,
		&r.Trigger, &r.Branch, &r.PRURL, &r.Error, &r.AgentOutput,
		&r.AgentName, &r.TokensUsed, &createdAt, &updatedAt)
	if err != nil {
		return Run{}, err
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

func parseTime(raw string) time.Time {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	// sqlite datetime('now') default format.
	t, _ := time.Parse("2006-01-02 15:04:05", raw)
	return t
}
