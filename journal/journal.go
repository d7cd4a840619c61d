// Package journal keeps an append-only sqlite log of pool events, so the
// console can show what happened to remote controls and sessions after the
// fact. It is a history, the pool never reads its state back from it.
package journal

import (
	"github.com/rcgrid/rcgrid/pool"

	"github.com/go-logr/logr"

	"database/sql"
	"fmt"
	"time"
)

const schema = `CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY ASC,
	-- unix milliseconds
	time INTEGER,
	kind TEXT,
	environment TEXT,
	remote_control TEXT,
	session_id TEXT,
	wait_ms INTEGER
)`

const selectEvents = "SELECT time, kind, environment, remote_control, session_id, wait_ms FROM events"

type Journal struct {
	db  *Database
	log logr.Logger
}

// Open creates or reuses the sqlite journal at path; ":memory:" keeps it in memory.
func Open(path string, logger logr.Logger) (*Journal, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("error opening journal %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating journal schema: %w", err)
	}
	return &Journal{db: db, log: logger.WithName("journal")}, nil
}

// Record implements pool.EventSink. Write failures are logged and dropped.
func (j *Journal) Record(e pool.Event) {
	_, err := j.db.Exec(
		"INSERT INTO events (time, kind, environment, remote_control, session_id, wait_ms) VALUES (?, ?, ?, ?, ?, ?)",
		e.Time.UnixMilli(), string(e.Kind), e.Environment, e.RemoteControl, e.SessionID, e.Wait.Milliseconds(),
	)
	if err != nil {
		j.log.Error(err, "could not record event", "kind", e.Kind)
	}
}

// Recent returns up to limit events, most recent first.
func (j *Journal) Recent(limit int) ([]pool.Event, error) {
	return j.query(selectEvents+" ORDER BY id DESC LIMIT ?", limit)
}

// Session returns the events of one session in the order they happened.
func (j *Journal) Session(id string) ([]pool.Event, error) {
	return j.query(selectEvents+" WHERE session_id = ? ORDER BY id ASC", id)
}

func (j *Journal) query(q string, args ...interface{}) ([]pool.Event, error) {
	var events []pool.Event
	err := j.db.Query(q, func(rows *sql.Rows) error {
		var e pool.Event
		var ms, waitMS int64
		var kind string
		if err := rows.Scan(&ms, &kind, &e.Environment, &e.RemoteControl, &e.SessionID, &waitMS); err != nil {
			return err
		}
		e.Time = time.UnixMilli(ms)
		e.Kind = pool.EventKind(kind)
		e.Wait = time.Duration(waitMS) * time.Millisecond
		events = append(events, e)
		return nil
	}, args...)
	if err != nil {
		return nil, fmt.Errorf("error reading journal: %w", err)
	}
	return events, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
