package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateRun inserts a new pending run for the given issue and returns it.
func (db *DB) CreateRun(issueNumber int, issueTitle string, trigger Trigger, repo string) (Run, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := db.conn.Exec(`
		INSERT INTO runs (issue_number, issue_title, repo, status, trigger, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		issueNumber, issueTitle, repo, StatusPending, trigger, now, now,
	)
	if err != nil {
		return Run{}, fmt.Errorf("creating run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Run{}, fmt.Errorf("reading run id: %w", err)
	}
	return db.GetRun(id)
}

// RunPatch holds the fields an UpdateRun call wants to change. Nil fields
// are left untouched, so partial updates never null out existing values.
type RunPatch struct {
	Status      *Status
	Branch      *string
	PRURL       *string
	Error       *string
	AgentOutput *string
	AgentName   *string
	TokensUsed  *int
}

// Ptr returns a pointer to v, for building RunPatch literals.
func Ptr[T any](v T) *T { return &v }

// UpdateRun applies the patch as a single atomic statement, setting
// updated_at to now, and returns the updated run.
func (db *DB) UpdateRun(id int64, patch RunPatch) (Run, error) {
	var sets []string
	var args []any

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.Branch != nil {
		sets = append(sets, "branch = ?")
		args = append(args, *patch.Branch)
	}
	if patch.PRURL != nil {
		sets = append(sets, "pr_url = ?")
		args = append(args, *patch.PRURL)
	}
	if patch.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *patch.Error)
	}
	if patch.AgentOutput != nil {
		sets = append(sets, "agent_output = ?")
		args = append(args, *patch.AgentOutput)
	}
	if patch.AgentName != nil {
		sets = append(sets, "agent_name = ?")
		args = append(args, *patch.AgentName)
	}
	if patch.TokensUsed != nil {
		sets = append(sets, "tokens_used = ?")
		args = append(args, *patch.TokensUsed)
	}

	if len(sets) == 0 {
		return db.GetRun(id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)

	res, err := db.conn.Exec("UPDATE runs SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return Run{}, fmt.Errorf("updating run %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Run{}, fmt.Errorf("updating run %d: %w", id, ErrNotFound)
	}
	return db.GetRun(id)
}

// AppendAgentOutput concatenates chunk onto the run's accumulated agent
// transcript in a single statement.
func (db *DB) AppendAgentOutput(id int64, chunk string) error {
	_, err := db.conn.Exec(`
		UPDATE runs SET agent_output = agent_output || ?, updated_at = ? WHERE id = ?`,
		chunk, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("appending agent output to run %d: %w", id, err)
	}
	return nil
}

// GetRun fetches a run by id, returning ErrNotFound when it does not exist.
func (db *DB) GetRun(id int64) (Run, error) {
	row := db.conn.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %d: %w", id, ErrNotFound)
		}
		return Run{}, fmt.Errorf("getting run %d: %w", id, err)
	}
	return r, nil
}

// RunsForIssue returns all runs for the issue, newest first. An empty repo
// matches runs from any repository.
func (db *DB) RunsForIssue(issueNumber int, repo string) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE issue_number = ?"
	args := []any{issueNumber}
	if repo != "" {
		query += " AND repo = ?"
		args = append(args, repo)
	}
	query += " ORDER BY created_at DESC, id DESC"

	return db.queryRuns(query, args...)
}

// AllRuns returns every run, newest first.
func (db *DB) AllRuns() ([]Run, error) {
	return db.queryRuns("SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, id DESC")
}

// IsIssueClaimed reports whether the issue has a run in a claiming status
// (pending, running, success, needs_human). Deferred, failed, timeout and
// blocked runs do not claim, so later cycles may retry.
func (db *DB) IsIssueClaimed(issueNumber int, repo string) (bool, error) {
	placeholders := make([]string, len(claimStatuses))
	args := []any{issueNumber}
	if repo != "" {
		args = append(args, repo)
	}
	for i, s := range claimStatuses {
		placeholders[i] = "?"
		args = append(args, s)
	}

	query := "SELECT COUNT(*) FROM runs WHERE issue_number = ?"
	if repo != "" {
		query += " AND repo = ?"
	}
	query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"

	var count int
	if err := db.conn.QueryRow(query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("checking claim for issue %d: %w", issueNumber, err)
	}
	return count > 0, nil
}

func (db *DB) queryRuns(query string, args ...any) ([]Run, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
