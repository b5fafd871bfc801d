// Package store is the durable record of issues, workers, worker
// events, and PR-review iterations. It is the only public surface
// other components use to read or mutate persisted state.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a single-writer SQLite database in WAL mode.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the SQLite database at path, enables WAL
// journaling and foreign-key enforcement, and applies schema
// migrations including in-place evolution of earlier-version databases.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging store: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("schema migration: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

const baseSchema = `
CREATE TABLE IF NOT EXISTS issues (
	issue_number INTEGER PRIMARY KEY,
	title        TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	agent_id     TEXT,
	pr_number    INTEGER,
	attempts     INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workers (
	agent_id      TEXT PRIMARY KEY,
	issue_number  INTEGER NOT NULL,
	pr_number     INTEGER,
	agent_type    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	worktree_path TEXT NOT NULL,
	branch_name   TEXT NOT NULL,
	turns_used    INTEGER NOT NULL DEFAULT 0,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	error_message TEXT,
	FOREIGN KEY (issue_number) REFERENCES issues(issue_number)
);

CREATE TABLE IF NOT EXISTS worker_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id   TEXT NOT NULL,
	event_type TEXT,
	event_data TEXT,
	timestamp  TEXT NOT NULL,
	FOREIGN KEY (agent_id) REFERENCES workers(agent_id)
);

CREATE TABLE IF NOT EXISTS pr_review_iterations (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	pr_number      INTEGER NOT NULL,
	iteration      INTEGER NOT NULL,
	comments_count INTEGER NOT NULL DEFAULT 0,
	agent_id       TEXT,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at     TEXT NOT NULL
);
`

// evolutions lists columns that may be missing on a database created by
// an earlier schema version. Each is added in-place if absent, per the
// Store's schema-evolution requirement.
var evolutions = []struct {
	table  string
	column string
	ddl    string
}{
	{"workers", "pid", "ALTER TABLE workers ADD COLUMN pid INTEGER"},
	{"workers", "session_id", "ALTER TABLE workers ADD COLUMN session_id TEXT"},
	{"workers", "resume_count", "ALTER TABLE workers ADD COLUMN resume_count INTEGER NOT NULL DEFAULT 0"},
	{"workers", "rate_limited_at", "ALTER TABLE workers ADD COLUMN rate_limited_at TEXT"},
	{"pr_review_iterations", "comments_json", "ALTER TABLE pr_review_iterations ADD COLUMN comments_json TEXT NOT NULL DEFAULT ''"},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, baseSchema); err != nil {
		return fmt.Errorf("applying base schema: %w", err)
	}

	for _, ev := range evolutions {
		has, err := s.hasColumn(ctx, ev.table, ev.column)
		if err != nil {
			return fmt.Errorf("checking column %s.%s: %w", ev.table, ev.column, err)
		}
		if has {
			continue
		}
		if _, err := s.db.ExecContext(ctx, ev.ddl); err != nil {
			return fmt.Errorf("evolving %s.%s: %w", ev.table, ev.column, err)
		}
		slog.Info("Evolved schema", "table", ev.table, "column", ev.column)
	}
	return nil
}

func (s *Store) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dfltValue  sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func nowTime() time.Time { return time.Now().UTC() }

func nowString() string { return now() }

// --- generic reflection-based CRUD, in the teacher's sqlite.go style ---

func (s *Store) insert(ctx context.Context, table string, record interface{}) (int64, error) {
	cols, placeholders, vals := structToInsert(record)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	res, err := s.db.ExecContext(ctx, query, vals...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return res.LastInsertId()
}

func (s *Store) selectInto(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, dest)
}

func (s *Store) getInto(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr {
		return fmt.Errorf("getInto: dest must be a pointer")
	}
	elem := dv.Elem()
	ptrs := fieldPointers(elem, cols)
	return rows.Scan(ptrs...)
}

func structToInsert(record interface{}) (cols, placeholders []string, vals []interface{}) {
	v := reflect.ValueOf(record)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		fv := v.Field(i)
		if isAutoIncrementID(tag) && isZero(fv) {
			continue
		}
		cols = append(cols, tag)
		placeholders = append(placeholders, "?")
		vals = append(vals, toDBValue(fv))
	}
	return
}

func isAutoIncrementID(tag string) bool { return tag == "id" }

func isZero(v reflect.Value) bool {
	return v.IsZero()
}

// toDBValue converts Go pointer/time fields into driver-friendly values.
func toDBValue(v reflect.Value) interface{} {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		return toDBValue(v.Elem())
	}
	if t, ok := v.Interface().(time.Time); ok {
		if t.IsZero() {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v.Interface()
}

func scanRows(rows *sql.Rows, dest interface{}) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("scanRows: dest must be a pointer to a slice")
	}
	sliceVal := dv.Elem()
	elemType := sliceVal.Type().Elem()

	for rows.Next() {
		elem := reflect.New(elemType).Elem()
		ptrs := fieldPointers(elem, cols)
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		sliceVal.Set(reflect.Append(sliceVal, elem))
	}
	return rows.Err()
}

// fieldPointers maps column names to struct field pointers via `db:`
// tags, wrapping pointer/time fields in scan-friendly shims.
func fieldPointers(elem reflect.Value, cols []string) []interface{} {
	tagIndex := map[string]int{}
	t := elem.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag != "" && tag != "-" {
			tagIndex[tag] = i
		}
	}
	ptrs := make([]interface{}, len(cols))
	for i, c := range cols {
		idx, ok := tagIndex[c]
		if !ok {
			var discard interface{}
			ptrs[i] = &discard
			continue
		}
		ptrs[i] = scanShim(elem.Field(idx))
	}
	return ptrs
}

// scanShim returns a sql.Scanner-ish pointer appropriate for the
// field's Go type, handling *string/*int64/*time.Time and time.Time.
func scanShim(fv reflect.Value) interface{} {
	switch fv.Interface().(type) {
	case time.Time:
		return &timeScanner{dst: fv}
	case *string:
		return &nullStringScanner{dst: fv}
	case *int64:
		return &nullInt64Scanner{dst: fv}
	case *int:
		return &nullIntScanner{dst: fv}
	case *time.Time:
		return &nullTimeScanner{dst: fv}
	default:
		return fv.Addr().Interface()
	}
}
