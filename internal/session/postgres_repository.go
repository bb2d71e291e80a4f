package session

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Krimson/strokeguard/internal/risk"
)

//go:embed schema.sql
var schemaSQL string

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// NewPostgresRepositoryFromDSN opens and pings the database.
func NewPostgresRepositoryFromDSN(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

// Migrate creates the tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

const upsertScanQuery = `
	INSERT INTO scans (
		id, user_id, mode, status, code, pulse_rate, prv, confidence,
		spo2, score, risk_level, triage, baseline, metadata, started_at, finished_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		code = EXCLUDED.code,
		pulse_rate = EXCLUDED.pulse_rate,
		prv = EXCLUDED.prv,
		confidence = EXCLUDED.confidence,
		spo2 = EXCLUDED.spo2,
		score = EXCLUDED.score,
		risk_level = EXCLUDED.risk_level,
		triage = EXCLUDED.triage,
		baseline = EXCLUDED.baseline,
		metadata = EXCLUDED.metadata,
		finished_at = EXCLUDED.finished_at
`

const selectScanColumns = `
	SELECT id, user_id, mode, status, code, pulse_rate, prv, confidence,
		spo2, score, risk_level, triage, baseline, metadata, started_at, finished_at
	FROM scans
`

func (r *PostgresRepository) SaveScan(ctx context.Context, rec *Record) error {
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	var baselineJSON []byte
	if rec.Baseline != nil {
		if baselineJSON, err = json.Marshal(rec.Baseline); err != nil {
			return fmt.Errorf("failed to marshal baseline: %w", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, upsertScanQuery,
		rec.SessionID,
		userOrAnonymous(rec.UserID),
		rec.Mode,
		rec.Status,
		rec.Code,
		rec.PulseRate,
		rec.PRV,
		rec.Confidence,
		rec.SpO2,
		rec.Score,
		rec.Level,
		rec.Triage,
		baselineJSON,
		metadataJSON,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM scan_samples WHERE session_id = $1", rec.SessionID); err != nil {
		return fmt.Errorf("failed to clear samples: %w", err)
	}

	if len(rec.Samples) > 0 {
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO scan_samples (session_id, idx, pulse_rate) VALUES ($1, $2, $3)")
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i, v := range rec.Samples {
			if _, err := stmt.ExecContext(ctx, rec.SessionID, i, v); err != nil {
				return fmt.Errorf("failed to insert sample: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetScan(ctx context.Context, sessionID string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, selectScanColumns+" WHERE id = $1", sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT pulse_rate FROM scan_samples WHERE session_id = $1 ORDER BY idx", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		rec.Samples = append(rec.Samples, v)
	}
	return rec, rows.Err()
}

func (r *PostgresRepository) ListScans(ctx context.Context, userID string, limit, offset int) ([]*Record, error) {
	query := selectScanColumns + `
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userOrAnonymous(userID), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			continue // skip corrupted rows
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresRepository) ScanDates(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	query := `
		SELECT started_at FROM scans
		WHERE user_id = $1 AND status = $2 AND started_at >= $3
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userOrAnonymous(userID), ScanStatusCompleted, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, t)
	}
	return dates, rows.Err()
}

func (r *PostgresRepository) DeleteScan(ctx context.Context, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	queries := []string{
		"DELETE FROM scan_samples WHERE session_id = $1",
		"DELETE FROM scans WHERE id = $1",
	}
	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query, sessionID); err != nil {
			return fmt.Errorf("failed to delete scan data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec          Record
		spo2         sql.NullFloat64
		score        sql.NullInt64
		baselineJSON []byte
		metadataJSON []byte
	)

	err := row.Scan(
		&rec.SessionID,
		&rec.UserID,
		&rec.Mode,
		&rec.Status,
		&rec.Code,
		&rec.PulseRate,
		&rec.PRV,
		&rec.Confidence,
		&spo2,
		&score,
		&rec.Level,
		&rec.Triage,
		&baselineJSON,
		&metadataJSON,
		&rec.StartedAt,
		&rec.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if spo2.Valid {
		rec.SpO2 = &spo2.Float64
	}
	if score.Valid {
		v := int(score.Int64)
		rec.Score = &v
	}
	if len(baselineJSON) > 0 {
		var b risk.Baseline
		if err := json.Unmarshal(baselineJSON, &b); err != nil {
			return nil, fmt.Errorf("failed to unmarshal baseline: %w", err)
		}
		rec.Baseline = &b
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}

func userOrAnonymous(userID string) string {
	if userID == "" {
		return anonymousUser
	}
	return userID
}
