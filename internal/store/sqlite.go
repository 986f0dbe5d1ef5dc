package store

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/notepad/internal/apperr"
	"github.com/starford/notepad/internal/models"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	title    TEXT    NOT NULL DEFAULT '',
	body     TEXT    NOT NULL DEFAULT '',
	created  INTEGER NOT NULL,
	modified INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_modified ON notes(modified DESC);
`

// SQLite implements Store on a local SQLite database file.
//
// Writes from this process are serialized so an autocommit statement never
// starts on a stale WAL snapshot; readers stay concurrent.
type SQLite struct {
	conn    *sql.DB
	path    string
	opts    options
	mark    watermark
	writeMu sync.Mutex
}

// OpenSQLite opens (or creates) the SQLite database at path and applies the schema.
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, unavailable("open db", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, unavailable("ping", err)
	}
	if _, err := conn.Exec(sqliteSchemaSQL); err != nil {
		conn.Close()
		return nil, unavailable("apply schema", err)
	}

	s := &SQLite{conn: conn, path: path, opts: buildOptions(opts)}
	if err := s.Reload(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Reload raises the watermark to the newest modification in the file, to
// pick up writes made by other processes.
func (s *SQLite) Reload() error {
	var last sql.NullInt64
	if err := s.conn.QueryRow(`SELECT MAX(modified) FROM notes`).Scan(&last); err != nil {
		return unavailable("load watermark", err)
	}
	s.mark.bump(last.Int64)
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Insert creates a new row.
func (s *SQLite) Insert(fields models.Fields) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ts := s.opts.stamp(fields.ModifiedAt)
	res, err := s.conn.Exec(`INSERT INTO notes (title, body, created, modified) VALUES (?, ?, ?, ?)`,
		deref(fields.Title), deref(fields.Body), ts, ts)
	if err != nil {
		return 0, unavailable("insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("insert id", err)
	}
	s.mark.bump(ts)
	return id, nil
}

// Get is a point lookup by id.
func (s *SQLite) Get(id int64) (*models.Note, error) {
	var n models.Note
	err := s.conn.QueryRow(`SELECT id, title, body, created, modified FROM notes WHERE id = ?`, id).
		Scan(&n.ID, &n.Title, &n.Body, &n.CreatedAt, &n.ModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return &n, nil
}

// Update merges fields into row id in a single statement. The modification
// time never moves backwards.
func (s *SQLite) Update(id int64, fields models.Fields) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ts := s.opts.stamp(fields.ModifiedAt)
	res, err := s.conn.Exec(`
		UPDATE notes SET
			title    = COALESCE(?, title),
			body     = COALESCE(?, body),
			modified = MAX(modified, ?)
		WHERE id = ?
	`, fields.Title, fields.Body, ts, id)
	if err != nil {
		return unavailable("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("update rows", err)
	}
	if n == 0 {
		return fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	s.mark.bump(ts)
	return nil
}

// Delete removes row id if present.
func (s *SQLite) Delete(id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.conn.Exec(`DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return unavailable("delete", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.mark.bump(s.opts.now().UnixMilli())
	}
	return nil
}

// Query runs the filtered query each time the sequence is ranged over.
func (s *SQLite) Query(filter models.SearchFilter) iter.Seq2[models.Note, error] {
	q := `SELECT id, title, body, created, modified FROM notes`
	var args []any
	if filter.Pattern != "" {
		if s.opts.caseSensitive {
			q += ` WHERE instr(title, ?) > 0`
		} else {
			q += ` WHERE instr(lower(title), lower(?)) > 0`
		}
		args = append(args, filter.Pattern)
	}
	q += ` ORDER BY modified DESC, id DESC`
	return scanNotes(s.conn, q, args...)
}

// LastModified returns the mutation watermark.
func (s *SQLite) LastModified() int64 {
	return s.mark.load()
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// scanNotes yields rows from q lazily; an error ends the sequence.
func scanNotes(conn *sql.DB, q string, args ...any) iter.Seq2[models.Note, error] {
	return func(yield func(models.Note, error) bool) {
		rows, err := conn.Query(q, args...)
		if err != nil {
			yield(models.Note{}, unavailable("query", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var n models.Note
			if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.CreatedAt, &n.ModifiedAt); err != nil {
				yield(models.Note{}, unavailable("scan", err))
				return
			}
			if !yield(n, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Note{}, unavailable("rows", err))
		}
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %v", op, apperr.ErrStorageUnavailable, err)
}
