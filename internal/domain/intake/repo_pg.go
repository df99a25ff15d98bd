package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/intake/internal/platform/db"
)

// PostgresStore keeps each record as one JSONB document, with the columns
// the staff listing filters and sorts on copied alongside.
type PostgresStore struct {
	pool *pgxpool.Pool
	// q replaces the pool when set.
	q db.Querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (r *PostgresStore) conn(ctx context.Context) db.Querier {
	if r.q != nil {
		return r.q
	}
	return db.Conn(ctx, r.pool)
}

func (r *PostgresStore) Load(ctx context.Context, patientID string) (*Record, error) {
	var raw []byte
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT record FROM intake_records WHERE patient_id = $1`, patientID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", patientID, err)
	}
	return &rec, nil
}

func (r *PostgresStore) Save(ctx context.Context, rec *Record) error {
	if rec.PatientID == "" {
		return ErrEmptyPatientID
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.PatientID, err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO intake_records (patient_id, record, patient_name, phase, visit_number, alert_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (patient_id) DO UPDATE SET
			record = EXCLUDED.record,
			patient_name = EXCLUDED.patient_name,
			phase = EXCLUDED.phase,
			visit_number = EXCLUDED.visit_number,
			alert_level = EXCLUDED.alert_level,
			updated_at = EXCLUDED.updated_at`,
		rec.PatientID, raw, rec.Identity.Name, string(rec.Phase), rec.VisitNumber,
		string(rec.AlertLevel), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (r *PostgresStore) List(ctx context.Context, limit, offset int) ([]*RecordSummary, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM intake_records`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT patient_id, patient_name, phase, visit_number, alert_level, updated_at
		FROM intake_records ORDER BY updated_at DESC, patient_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	items := []*RecordSummary{}
	for rows.Next() {
		var s RecordSummary
		if err := rows.Scan(&s.PatientID, &s.Name, &s.Phase, &s.VisitNumber, &s.AlertLevel, &s.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan record summary: %w", err)
		}
		items = append(items, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	return items, total, nil
}
