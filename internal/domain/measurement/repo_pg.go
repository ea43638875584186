package measurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type extractionRepoPG struct{ pool *pgxpool.Pool }

// NewExtractionRepoPG stores extractions in postgres. The schema comes from
// the db package migrations.
func NewExtractionRepoPG(pool *pgxpool.Pool) ExtractionRepository {
	return &extractionRepoPG{pool: pool}
}

func (r *extractionRepoPG) conn() queryable { return r.pool }

const extractionCols = `id, instance_id, source, patient_id, patient_name, "values", created_at`

func (r *extractionRepoPG) scanRow(row pgx.Row) (*Extraction, error) {
	var e Extraction
	var raw []byte
	err := row.Scan(&e.ID, &e.InstanceID, &e.Source, &e.PatientID, &e.PatientName, &raw, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &e.Values); err != nil {
		return nil, fmt.Errorf("decode values of %s: %w", e.ID, err)
	}
	return &e, nil
}

func (r *extractionRepoPG) Create(ctx context.Context, e *Extraction) error {
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
	_, err = r.conn().Exec(ctx, `
		INSERT INTO extraction (id, instance_id, source, patient_id, patient_name, "values", created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.InstanceID, e.Source, e.PatientID, e.PatientName, values, e.CreatedAt)
	return err
}

func (r *extractionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Extraction, error) {
	return r.scanRow(r.conn().QueryRow(ctx, `SELECT `+extractionCols+` FROM extraction WHERE id = $1`, id))
}

func (r *extractionRepoPG) List(ctx context.Context, limit, offset int) ([]*Extraction, int, error) {
	return r.list(ctx, ``, nil, limit, offset)
}

func (r *extractionRepoPG) ListByInstance(ctx context.Context, instanceID string, limit, offset int) ([]*Extraction, int, error) {
	return r.list(ctx, ` WHERE instance_id = $1`, []interface{}{instanceID}, limit, offset)
}

func (r *extractionRepoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Extraction, int, error) {
	var total int
	if err := r.conn().QueryRow(ctx, `SELECT COUNT(*) FROM extraction`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	idx := len(args) + 1
	query := `SELECT ` + extractionCols + ` FROM extraction` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := r.conn().Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Extraction
	for rows.Next() {
		e, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *extractionRepoPG) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
