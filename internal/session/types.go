package session

import (
	"errors"
	"time"

	"github.com/Krimson/strokeguard/internal/ppg"
	"github.com/Krimson/strokeguard/internal/risk"
	"github.com/Krimson/strokeguard/internal/scan"
)

// ScanStatus is the lifecycle state of a scan session as seen by clients.
type ScanStatus string

const (
	ScanStatusActive    ScanStatus = "ACTIVE"
	ScanStatusCompleted ScanStatus = "COMPLETED"
	ScanStatusAborted   ScanStatus = "ABORTED"
	ScanStatusFailed    ScanStatus = "FAILED"
	ScanStatusStopped   ScanStatus = "STOPPED"
)

// Frame source kinds accepted when a scan is created.
const (
	SourceSynthetic = "synthetic"
	SourcePush      = "push"
)

const anonymousUser = "anonymous"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInactive = errors.New("session is not active")
	ErrUnknownSource   = errors.New("unknown frame source")
	ErrNotPushSource   = errors.New("session does not accept pushed frames")
	ErrFrameRejected   = errors.New("frame rejected")
)

func statusFor(st scan.State) ScanStatus {
	switch st {
	case scan.StateCompleted:
		return ScanStatusCompleted
	case scan.StateAborted:
		return ScanStatusAborted
	case scan.StateFailed:
		return ScanStatusFailed
	case scan.StateIdle:
		return ScanStatusStopped
	default:
		return ScanStatusActive
	}
}

// Session is one scan started through the API.
type Session struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Mode            ppg.Mode   `json:"mode"`
	Source          string     `json:"source"`
	Status          ScanStatus `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	TotalDurationMs int64      `json:"total_duration_ms"`
	Windows         int        `json:"windows"`
	Metadata        Metadata   `json:"metadata,omitempty"`
}

type Metadata struct {
	Notes       string `json:"notes,omitempty"`
	CreatedFrom string `json:"created_from,omitempty"` // "web", "mobile", "cli"
	Exercising  bool   `json:"exercising,omitempty"`
}

// Record is a finished scan as kept in the history table.
type Record struct {
	SessionID  string           `json:"session_id"`
	UserID     string           `json:"user_id"`
	Mode       ppg.Mode         `json:"mode"`
	Status     ScanStatus       `json:"status"`
	Code       scan.ErrorCode   `json:"code,omitempty"`
	PulseRate  float64          `json:"pulse_rate"`
	PRV        float64          `json:"prv"`
	Confidence float64          `json:"confidence"`
	SpO2       *float64         `json:"spo2,omitempty"`
	Score      *int             `json:"score,omitempty"`
	Level      risk.Level       `json:"risk_level,omitempty"`
	Triage     risk.TriageColor `json:"triage,omitempty"`
	Baseline   *risk.Baseline   `json:"baseline,omitempty"`
	Samples    []float64        `json:"pulse_rate_samples,omitempty"`
	Metadata   Metadata         `json:"metadata,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// RecordFrom flattens a terminal outcome into a history record.
func RecordFrom(s *Session, o scan.Outcome) *Record {
	rec := &Record{
		SessionID:  s.ID,
		UserID:     s.UserID,
		Mode:       s.Mode,
		Status:     statusFor(o.State),
		Code:       o.Code,
		Triage:     o.Triage,
		Baseline:   o.Baseline,
		Metadata:   s.Metadata,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.StartedAt
	}
	if res := o.Result; res != nil {
		rec.PulseRate = res.PulseRate
		rec.PRV = res.PRV
		rec.Confidence = res.Confidence
		rec.Samples = append([]float64(nil), res.PulseRateSamples...)
		if res.SpO2 != nil {
			v := res.SpO2.Value
			rec.SpO2 = &v
		}
	}
	if o.Score != nil {
		total := o.Score.Total
		rec.Score = &total
		rec.Level = o.Score.Level
	}
	return rec
}

// CreateScanRequest starts a scan.
type CreateScanRequest struct {
	UserID      string         `json:"user_id,omitempty"`
	Mode        string         `json:"mode"`
	Source      string         `json:"source,omitempty"` // synthetic (default) or push
	Notes       string         `json:"notes,omitempty"`
	CreatedFrom string         `json:"created_from,omitempty"`
	Exercising  bool           `json:"exercising,omitempty"`
	Baseline    *risk.Baseline `json:"baseline,omitempty"`
}

type SessionResponse struct {
	Session  *Session        `json:"session"`
	Snapshot *scan.Snapshot  `json:"snapshot,omitempty"`
	Progress []scan.Progress `json:"progress,omitempty"`
	Outcome  *scan.Outcome   `json:"outcome,omitempty"`
}

// ScoreRequest scores vitals supplied by the caller without running a scan.
type ScoreRequest struct {
	Baseline risk.Baseline `json:"baseline"`
	Metrics  risk.Metrics  `json:"metrics"`
}

type ScoreResponse struct {
	Score  risk.Score       `json:"score"`
	Triage risk.TriageColor `json:"triage"`
}

// Streak counts consecutive days with at least one completed scan.
type Streak struct {
	Days         int        `json:"days"`
	CheckedToday bool       `json:"checked_today"`
	LastCheck    *time.Time `json:"last_check,omitempty"`
}
