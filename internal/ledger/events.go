package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LogEvent appends an audit entry for the run and returns it. Events are
// never updated or deleted.
func (db *DB) LogEvent(runID int64, eventType, detail string) (Event, error) {
	ev := Event{
		ID:        uuid.New().String(),
		RunID:     runID,
		EventType: eventType,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.conn.Exec(`
		INSERT INTO run_events (id, run_id, event_type, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.RunID, ev.EventType, ev.Detail, ev.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return Event{}, fmt.Errorf("logging event %q for run %d: %w", eventType, runID, err)
	}
	return ev, nil
}

// EventsForRun returns the run's audit trail in insertion order.
func (db *DB) EventsForRun(runID int64) ([]Event, error) {
	rows, err := db.conn.Query(`
		SELECT id, run_id, event_type, detail, created_at
		FROM run_events WHERE run_id = ? ORDER BY created_at ASC, rowid ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing events for run %d: %w", runID, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.EventType, &ev.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.CreatedAt = parseTime(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}
