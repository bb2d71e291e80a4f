package session

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krimson/strokeguard/internal/ppg"
	"github.com/Krimson/strokeguard/internal/risk"
	"github.com/Krimson/strokeguard/internal/scan"
)

var scanColumns = []string{
	"id", "user_id", "mode", "status", "code", "pulse_rate", "prv", "confidence",
	"spo2", "score", "risk_level", "triage", "baseline", "metadata", "started_at", "finished_at",
}

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestPostgresRepository_SaveScan(t *testing.T) {
	repo, mock := newMockRepository(t)
	score := 96
	rec := &Record{
		SessionID:  "0f8b1c2e-8d1e-4c57-9a4b-2c6a3c1f0e11",
		UserID:     "u1",
		Mode:       ppg.ModeFace,
		Status:     ScanStatusCompleted,
		PulseRate:  71.5,
		PRV:        42.1,
		Confidence: 100,
		Score:      &score,
		Level:      risk.LevelLow,
		Triage:     risk.TriageGreen,
		Samples:    []float64{70, 73},
		StartedAt:  time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 3, 1, 8, 0, 30, 0, time.UTC),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM scan_samples").
		WithArgs(rec.SessionID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO scan_samples")
	prep.ExpectExec().WithArgs(rec.SessionID, 0, 70.0).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(rec.SessionID, 1, 73.0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveScan(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SaveScanRollsBack(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.SaveScan(context.Background(), &Record{SessionID: "s1", Status: ScanStatusFailed})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetScan(t *testing.T) {
	repo, mock := newMockRepository(t)
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM scans").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(scanColumns).AddRow(
			"s1", "u1", "fingertip", "COMPLETED", "", 72.0, 40.0, 80.0,
			97.0, int64(88), "Low Risk", "GREEN",
			[]byte(`{"blood_pressure":"118/76"}`), []byte(`{"created_from":"mobile"}`),
			started, started.Add(30*time.Second),
		))
	mock.ExpectQuery("SELECT pulse_rate FROM scan_samples").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"pulse_rate"}).AddRow(71.0).AddRow(73.0))

	rec, err := repo.GetScan(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, ppg.ModeFingertip, rec.Mode)
	assert.Equal(t, ScanStatusCompleted, rec.Status)
	require.NotNil(t, rec.SpO2)
	assert.Equal(t, 97.0, *rec.SpO2)
	require.NotNil(t, rec.Score)
	assert.Equal(t, 88, *rec.Score)
	assert.Equal(t, risk.LevelLow, rec.Level)
	require.NotNil(t, rec.Baseline)
	assert.Equal(t, "118/76", rec.Baseline.BloodPressure)
	assert.Equal(t, "mobile", rec.Metadata.CreatedFrom)
	assert.Equal(t, []float64{71, 73}, rec.Samples)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetScanNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("FROM scans").WithArgs("nope").WillReturnRows(sqlmock.NewRows(scanColumns))

	_, err := repo.GetScan(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListScans(t *testing.T) {
	repo, mock := newMockRepository(t)
	started := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM scans").
		WithArgs("u1", 10, 0).
		WillReturnRows(sqlmock.NewRows(scanColumns).
			AddRow("s2", "u1", "face", "ABORTED", string(scan.CodeInsufficientSignal), 0.0, 0.0, 0.0,
				nil, nil, "", "", nil, []byte(`{}`), started, started.Add(time.Minute)).
			AddRow("s1", "u1", "face", "COMPLETED", "", 70.0, 45.0, 100.0,
				nil, int64(91), "Low Risk", "GREEN", nil, []byte(`{}`), started.Add(-24*time.Hour), started.Add(-24*time.Hour+time.Minute)))

	records, err := repo.ListScans(context.Background(), "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "s2", records[0].SessionID)
	assert.Equal(t, scan.CodeInsufficientSignal, records[0].Code)
	assert.Nil(t, records[0].Score)
	assert.Nil(t, records[0].SpO2)
	require.NotNil(t, records[1].Score)
	assert.Equal(t, 91, *records[1].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ScanDatesAndDelete(t *testing.T) {
	repo, mock := newMockRepository(t)
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT started_at FROM scans").
		WithArgs("u1", ScanStatusCompleted, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"started_at"}).AddRow(day).AddRow(day.Add(-24 * time.Hour)))

	dates, err := repo.ScanDates(context.Background(), "u1", day.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, dates, 2)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM scan_samples").WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM scans").WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteScan(context.Background(), "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
