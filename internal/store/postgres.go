package store

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"

	_ "github.com/lib/pq"

	"github.com/starford/notepad/internal/apperr"
	"github.com/starford/notepad/internal/models"
)

const postgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id       BIGSERIAL PRIMARY KEY,
	title    TEXT   NOT NULL DEFAULT '',
	body     TEXT   NOT NULL DEFAULT '',
	created  BIGINT NOT NULL,
	modified BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_modified ON notes(modified DESC);
`

// Postgres implements Store on a PostgreSQL database.
type Postgres struct {
	conn *sql.DB
	opts options
	mark watermark
}

// OpenPostgres connects using a lib/pq DSN (URL or key=value form) and applies the schema.
func OpenPostgres(dsn string, opts ...Option) (*Postgres, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, unavailable("open db", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, unavailable("ping", err)
	}
	if _, err := conn.Exec(postgresSchemaSQL); err != nil {
		conn.Close()
		return nil, unavailable("apply schema", err)
	}

	p := &Postgres{conn: conn, opts: buildOptions(opts)}

	var last sql.NullInt64
	if err := conn.QueryRow(`SELECT MAX(modified) FROM notes`).Scan(&last); err != nil {
		conn.Close()
		return nil, unavailable("load watermark", err)
	}
	p.mark.bump(last.Int64)
	return p, nil
}

// Insert creates a new row.
func (p *Postgres) Insert(fields models.Fields) (int64, error) {
	ts := p.opts.stamp(fields.ModifiedAt)
	var id int64
	err := p.conn.QueryRow(`
		INSERT INTO notes (title, body, created, modified)
		VALUES ($1, $2, $3, $3)
		RETURNING id`,
		deref(fields.Title), deref(fields.Body), ts,
	).Scan(&id)
	if err != nil {
		return 0, unavailable("insert", err)
	}
	p.mark.bump(ts)
	return id, nil
}

// Get is a point lookup by id.
func (p *Postgres) Get(id int64) (*models.Note, error) {
	var n models.Note
	err := p.conn.QueryRow(`SELECT id, title, body, created, modified FROM notes WHERE id = $1`, id).
		Scan(&n.ID, &n.Title, &n.Body, &n.CreatedAt, &n.ModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return &n, nil
}

// Update merges fields into row id.
func (p *Postgres) Update(id int64, fields models.Fields) error {
	ts := p.opts.stamp(fields.ModifiedAt)
	res, err := p.conn.Exec(`
		UPDATE notes SET
			title    = COALESCE($1::text, title),
			body     = COALESCE($2::text, body),
			modified = GREATEST(modified, $3)
		WHERE id = $4`,
		fields.Title, fields.Body, ts, id)
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
	p.mark.bump(ts)
	return nil
}

// Delete removes row id if present.
func (p *Postgres) Delete(id int64) error {
	res, err := p.conn.Exec(`DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return unavailable("delete", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		p.mark.bump(p.opts.now().UnixMilli())
	}
	return nil
}

// Query runs the filtered query each time the sequence is ranged over.
func (p *Postgres) Query(filter models.SearchFilter) iter.Seq2[models.Note, error] {
	q := `SELECT id, title, body, created, modified FROM notes`
	var args []any
	if filter.Pattern != "" {
		if p.opts.caseSensitive {
			q += ` WHERE strpos(title, $1) > 0`
		} else {
			q += ` WHERE strpos(lower(title), lower($1)) > 0`
		}
		args = append(args, filter.Pattern)
	}
	q += ` ORDER BY modified DESC, id DESC`
	return scanNotes(p.conn, q, args...)
}

// LastModified returns the mutation watermark.
func (p *Postgres) LastModified() int64 {
	return p.mark.load()
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.conn.Close()
}
