// Package sqlite keeps the broadcast subscriber's inbox: the set of
// (event, channel) pairs already handled, so redelivered broadcasts are
// recognised and skipped.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS inbox (
    event_id    TEXT NOT NULL,
    channel     TEXT NOT NULL,
    event_name  TEXT NOT NULL,
    received_at TEXT NOT NULL,
    PRIMARY KEY (event_id, channel)
);
`

type Inbox struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the inbox database at path. ":memory:" gives a
// private in-process inbox.
func Open(path string) (*Inbox, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = "file::memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open inbox: %w", err)
	}
	// SQLite allows one writer at a time; a single connection also keeps
	// an in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply inbox schema: %w", err)
	}

	return &Inbox{db: db, now: time.Now}, nil
}

// MarkSeen records a delivery. It returns false when the same event was
// already recorded on the same channel.
func (i *Inbox) MarkSeen(ctx context.Context, eventID, channel, eventName string) (bool, error) {
	res, err := i.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO inbox (event_id, channel, event_name, received_at) VALUES (?, ?, ?, ?)`,
		eventID, channel, eventName, i.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record inbox entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read inbox result: %w", err)
	}
	return n == 1, nil
}

// Count returns how many distinct deliveries have been recorded for an event.
func (i *Inbox) Count(ctx context.Context, eventID string) (int, error) {
	var n int
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inbox WHERE event_id = ?`, eventID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count inbox entries: %w", err)
	}
	return n, nil
}

// Prune deletes entries older than the cutoff.
func (i *Inbox) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := i.now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	res, err := i.db.ExecContext(ctx, `DELETE FROM inbox WHERE received_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune inbox: %w", err)
	}
	return res.RowsAffected()
}

func (i *Inbox) Close() error {
	return i.db.Close()
}
