package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/intake/internal/domain/intake"
	"github.com/ehr/intake/internal/platform/db"
)

type PostgresStore struct{ pool *pgxpool.Pool }

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

func (s *PostgresStore) Save(ctx context.Context, r *Report) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO intake_reports (id, patient_id, visit_number, alert_level, content_type, document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (patient_id, visit_number) DO UPDATE SET
			id = EXCLUDED.id,
			alert_level = EXCLUDED.alert_level,
			content_type = EXCLUDED.content_type,
			document = EXCLUDED.document,
			created_at = EXCLUDED.created_at`,
		r.ID, r.PatientID, r.VisitNumber, string(r.AlertLevel), r.ContentType, r.Document, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert report %s/%d: %w", r.PatientID, r.VisitNumber, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, patientID string, visit int) (*Report, error) {
	r := &Report{PatientID: patientID, VisitNumber: visit}
	var level string
	err := s.conn(ctx).QueryRow(ctx, `
		SELECT id, alert_level, content_type, document, created_at
		FROM intake_reports WHERE patient_id = $1 AND visit_number = $2`,
		patientID, visit).Scan(&r.ID, &level, &r.ContentType, &r.Document, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select report: %w", err)
	}
	r.AlertLevel = intake.AlertLevel(level)
	return r, nil
}

func (s *PostgresStore) List(ctx context.Context, patientID string) ([]*Report, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT id, visit_number, alert_level, content_type, created_at
		FROM intake_reports WHERE patient_id = $1 ORDER BY visit_number`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		r := &Report{PatientID: patientID}
		var level string
		if err := rows.Scan(&r.ID, &r.VisitNumber, &level, &r.ContentType, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.AlertLevel = intake.AlertLevel(level)
		out = append(out, r)
	}
	return out, rows.Err()
}
