package journal

import (
	_ "github.com/mattn/go-sqlite3"
	sync "github.com/sasha-s/go-deadlock"

	"database/sql"
)

// Database serializes access to a sqlite handle.
type Database struct {
	db *sql.DB
	mu sync.Mutex
}

func OpenDatabase(path string) (*Database, error) {
	sdb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one connection, otherwise every connection to ":memory:" sees its own database
	sdb.SetMaxOpenConns(1)
	if err := sdb.Ping(); err != nil {
		sdb.Close()
		return nil, err
	}
	return &Database{db: sdb}, nil
}

func (d *Database) Exec(q string, args ...interface{}) (sql.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Exec(q, args...)
}

// Query runs q and calls f for each row while holding the lock.
func (d *Database) Query(q string, f func(rows *sql.Rows) error, args ...interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.db.Query(q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := f(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}
