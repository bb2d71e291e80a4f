package session

import (
	"context"
	"time"

	"github.com/Krimson/strokeguard/internal/risk"
	"github.com/Krimson/strokeguard/internal/scan"
)

// Repository stores finished scans.
type Repository interface {
	// SaveScan inserts or replaces a record together with its samples.
	SaveScan(ctx context.Context, rec *Record) error
	GetScan(ctx context.Context, sessionID string) (*Record, error)
	// ListScans returns a user's scans, newest first.
	ListScans(ctx context.Context, userID string, limit, offset int) ([]*Record, error)
	// ScanDates returns start times of a user's completed scans since the given time.
	ScanDates(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
	DeleteScan(ctx context.Context, sessionID string) error
}

// CacheStore holds live session state.
type CacheStore interface {
	SetSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	SetSessionTTL(ctx context.Context, sessionID string, ttl time.Duration) error

	// Progress windows (append-only)
	AppendProgress(ctx context.Context, sessionID string, p scan.Progress) error
	GetProgress(ctx context.Context, sessionID string) ([]scan.Progress, error)

	SetOutcome(ctx context.Context, sessionID string, o scan.Outcome) error
	GetOutcome(ctx context.Context, sessionID string) (*scan.Outcome, error)

	// Latest lifestyle baseline per user
	SetBaseline(ctx context.Context, userID string, b risk.Baseline) error
	GetBaseline(ctx context.Context, userID string) (*risk.Baseline, error)
}
