package measurement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteTime is fixed width so created_at sorts lexicographically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

type SQLiteExtractionRepo struct {
	db *sql.DB
}

// OpenExtractionRepoSQLite opens or creates the SQLite database at path and
// creates the schema if it does not exist. ":memory:" is accepted.
func OpenExtractionRepoSQLite(path string) (*SQLiteExtractionRepo, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY, and keeps one shared :memory: db.
	db.SetMaxOpenConns(1)

	r := &SQLiteExtractionRepo{db: db}
	if err := r.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteExtractionRepo) Close() error {
	return r.db.Close()
}

func (r *SQLiteExtractionRepo) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS extraction (
			id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			patient_id TEXT NOT NULL DEFAULT '',
			patient_name TEXT NOT NULL DEFAULT '',
			"values" TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extraction_instance ON extraction(instance_id)`,
		`CREATE INDEX IF NOT EXISTS idx_extraction_created ON extraction(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

const sqliteCols = `id, instance_id, source, patient_id, patient_name, "values", created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLite(row rowScanner) (*Extraction, error) {
	var (
		e         Extraction
		id        string
		values    string
		createdAt string
	)
	if err := row.Scan(&id, &e.InstanceID, &e.Source, &e.PatientID, &e.PatientName, &values, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var err error
	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	if e.CreatedAt, err = time.Parse(sqliteTime, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(values), &e.Values); err != nil {
		return nil, fmt.Errorf("decode values of %s: %w", id, err)
	}
	return &e, nil
}

func (r *SQLiteExtractionRepo) Create(ctx context.Context, e *Extraction) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	values, err := json.Marshal(e.Values)
	if err != nil {
		return fmt.Errorf("encode values: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO extraction (id, instance_id, source, patient_id, patient_name, "values", created_at)
		VALUES (?,?,?,?,?,?,?)`,
		e.ID.String(), e.InstanceID, string(e.Source), e.PatientID, e.PatientName, string(values),
		e.CreatedAt.UTC().Format(sqliteTime))
	return err
}

func (r *SQLiteExtractionRepo) GetByID(ctx context.Context, id uuid.UUID) (*Extraction, error) {
	return scanSQLite(r.db.QueryRowContext(ctx, `SELECT `+sqliteCols+` FROM extraction WHERE id = ?`, id.String()))
}

func (r *SQLiteExtractionRepo) List(ctx context.Context, limit, offset int) ([]*Extraction, int, error) {
	return r.list(ctx, ``, nil, limit, offset)
}

func (r *SQLiteExtractionRepo) ListByInstance(ctx context.Context, instanceID string, limit, offset int) ([]*Extraction, int, error) {
	return r.list(ctx, ` WHERE instance_id = ?`, []interface{}{instanceID}, limit, offset)
}

func (r *SQLiteExtractionRepo) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Extraction, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extraction`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteCols+` FROM extraction`+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Extraction
	for rows.Next() {
		e, err := scanSQLite(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *SQLiteExtractionRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
