package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Krimson/strokeguard/internal/ppg"
	"github.com/Krimson/strokeguard/internal/risk"
	"github.com/Krimson/strokeguard/internal/scan"
)

// SourceFactory builds a fresh frame source of the named kind.
type SourceFactory func(kind string) (scan.FrameSource, error)

// SinkFactory builds the per-session sink of an outbound channel such as a
// websocket hub or a message broker.
type SinkFactory interface {
	ForSession(sessionID string) scan.Sink
}

// replayForgetter is implemented by sinks that keep the last message of a
// session for late subscribers.
type replayForgetter interface {
	Forget(sessionID string)
}

type framePusher interface {
	PushFrame(img image.Image, ts time.Time) bool
}

// streakLookback bounds the history read for the daily streak.
const streakLookback = 366 * 24 * time.Hour

type ManagerOption func(*Manager)

func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithSinks(sinks ...SinkFactory) ManagerOption {
	return func(m *Manager) { m.sinks = append(m.sinks, sinks...) }
}

// WithDefaults sets the mode and source used when a request names none.
func WithDefaults(mode, source string) ManagerOption {
	return func(m *Manager) {
		if mode != "" {
			m.defaultMode = mode
		}
		if source != "" {
			m.defaultSource = source
		}
	}
}

func WithCaptureConfig(cfg scan.CaptureConfig) ManagerOption {
	return func(m *Manager) { m.capture = cfg }
}

// WithSessionTTL expires cached session state this long after a scan ends.
// Zero keeps it forever.
func WithSessionTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithLocation sets the time zone that decides calendar days for streaks.
func WithLocation(loc *time.Location) ManagerOption {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager runs scan sessions: one Scanner per session, live state in the
// cache and finished scans in the repository.
type Manager struct {
	cache      CacheStore
	repository Repository
	sources    SourceFactory
	sinks      []SinkFactory
	logger     *zap.Logger
	capture    scan.CaptureConfig
	ttl        time.Duration
	loc        *time.Location
	now        func() time.Time

	defaultMode   string
	defaultSource string

	mu     sync.RWMutex
	active map[string]*activeScan
}

// activeScan is a running session. mu guards session and serialises its
// cache writes, so a late progress event never overwrites a final status.
type activeScan struct {
	mu      sync.Mutex
	session *Session
	scanner *scan.Scanner
	source  scan.FrameSource
}

func NewManager(cache CacheStore, repository Repository, sources SourceFactory, opts ...ManagerOption) *Manager {
	m := &Manager{
		cache:         cache,
		repository:    repository,
		sources:       sources,
		logger:        zap.NewNop(),
		capture:       scan.DefaultCaptureConfig(),
		loc:           time.UTC,
		now:           time.Now,
		defaultSource: SourceSynthetic,
		active:        make(map[string]*activeScan),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartScan creates a session and starts its scan. Acquisition failures are
// recorded on the session and returned.
func (m *Manager) StartScan(ctx context.Context, req *CreateScanRequest) (*Session, error) {
	modeName := req.Mode
	if modeName == "" {
		modeName = m.defaultMode
	}
	mode, err := ppg.ParseMode(modeName)
	if err != nil {
		return nil, err
	}
	kind := req.Source
	if kind == "" {
		kind = m.defaultSource
	}
	src, err := m.sources(kind)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        uuid.New().String(),
		UserID:    userOrAnonymous(req.UserID),
		Mode:      mode,
		Source:    kind,
		Status:    ScanStatusActive,
		StartedAt: m.now(),
		Metadata: Metadata{
			Notes:       req.Notes,
			CreatedFrom: req.CreatedFrom,
			Exercising:  req.Exercising,
		},
	}

	if req.Baseline != nil {
		if err := m.cache.SetBaseline(ctx, sess.UserID, *req.Baseline); err != nil {
			m.logger.Warn("[SESSION] failed to store baseline", zap.String("user_id", sess.UserID), zap.Error(err))
		}
	}
	if err := m.cache.SetSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session to cache: %w", err)
	}

	a := &activeScan{session: sess, source: src}
	sinks := []scan.Sink{&sessionSink{m: m, a: a}}
	for _, f := range m.sinks {
		sinks = append(sinks, f.ForSession(sess.ID))
	}
	logger := m.logger.With(zap.String("session_id", sess.ID))
	a.scanner = scan.NewScanner(src,
		scan.NewCompositeSink(logger, sinks...),
		scan.WithLogger(logger),
		scan.WithBaselineProvider(&cachedBaseline{cache: m.cache, userID: sess.UserID}),
	)
	if req.Baseline != nil {
		a.scanner.SetBaseline(*req.Baseline)
	}

	m.mu.Lock()
	m.active[sess.ID] = a
	m.mu.Unlock()

	cfg := m.capture
	cfg.Exercising = req.Exercising
	if err := a.scanner.Start(ctx, mode, cfg); err != nil {
		m.mu.Lock()
		delete(m.active, sess.ID)
		m.mu.Unlock()
		return a.copySession(), err
	}

	m.logger.Info("[SESSION] scan started",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.String("mode", string(mode)),
		zap.String("source", kind),
		zap.Int("active", m.ActiveCount()))
	return a.copySession(), nil
}

// StopScan cancels a running scan. A stopped scan has no outcome and is not
// written to history.
func (m *Manager) StopScan(ctx context.Context, sessionID string) (*Session, error) {
	a, ok := m.lookup(sessionID)
	if !ok {
		if _, err := m.GetSession(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionInactive, sessionID)
	}

	if err := a.scanner.Stop(); err != nil && !errors.Is(err, scan.ErrNotRunning) {
		return nil, fmt.Errorf("failed to stop scan: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session.Status != ScanStatusActive {
		// finished before the stop landed
		s := *a.session
		return &s, nil
	}

	now := m.now()
	a.session.Status = ScanStatusStopped
	a.session.StoppedAt = &now
	a.session.TotalDurationMs = now.Sub(a.session.StartedAt).Milliseconds()
	m.release(sessionID)

	if err := m.cache.SetSession(ctx, a.session); err != nil {
		return nil, fmt.Errorf("failed to update session in cache: %w", err)
	}
	m.expire(ctx, sessionID)

	m.logger.Info("[SESSION] scan stopped",
		zap.String("session_id", sessionID),
		zap.Int64("duration_ms", a.session.TotalDurationMs))
	s := *a.session
	return &s, nil
}

// GetSession looks in memory, then the cache, then history.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if a, ok := m.lookup(sessionID); ok {
		return a.copySession(), nil
	}

	s, err := m.cache.GetSession(ctx, sessionID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		m.logger.Warn("[SESSION] cache lookup failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	rec, err := m.repository.GetScan(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sessionFromRecord(rec), nil
}

// Details collects everything known about a session.
func (m *Manager) Details(ctx context.Context, sessionID string) (*SessionResponse, error) {
	s, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	resp := &SessionResponse{Session: s}

	if a, ok := m.lookup(sessionID); ok {
		snap := a.scanner.Snapshot()
		resp.Snapshot = &snap
	}
	if progress, err := m.cache.GetProgress(ctx, sessionID); err == nil {
		resp.Progress = progress
	}
	if o, err := m.cache.GetOutcome(ctx, sessionID); err == nil {
		resp.Outcome = o
	}
	return resp, nil
}

// SetBaseline stores a baseline for the session's user. A running scan picks
// it up at its next window.
func (m *Manager) SetBaseline(ctx context.Context, sessionID string, b risk.Baseline) error {
	s, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := m.cache.SetBaseline(ctx, s.UserID, b); err != nil {
		return fmt.Errorf("failed to store baseline: %w", err)
	}
	if a, ok := m.lookup(sessionID); ok {
		a.scanner.SetBaseline(b)
	}
	return nil
}

func (m *Manager) SetUserBaseline(ctx context.Context, userID string, b risk.Baseline) error {
	if err := m.cache.SetBaseline(ctx, userOrAnonymous(userID), b); err != nil {
		return fmt.Errorf("failed to store baseline: %w", err)
	}
	return nil
}

func (m *Manager) GetUserBaseline(ctx context.Context, userID string) (*risk.Baseline, error) {
	return m.cache.GetBaseline(ctx, userOrAnonymous(userID))
}

// PushFrame hands an uploaded frame to a session created with the push source.
func (m *Manager) PushFrame(sessionID string, img image.Image, ts time.Time) error {
	a, ok := m.lookup(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionInactive, sessionID)
	}
	p, ok := a.source.(framePusher)
	if !ok {
		return ErrNotPushSource
	}
	if !p.PushFrame(img, ts) {
		return ErrFrameRejected
	}
	return nil
}

func (m *Manager) ListScans(ctx context.Context, userID string, limit, offset int) ([]*Record, error) {
	return m.repository.ListScans(ctx, userOrAnonymous(userID), limit, offset)
}

func (m *Manager) DeleteScan(ctx context.Context, sessionID string) error {
	if a, ok := m.lookup(sessionID); ok {
		if err := a.scanner.Stop(); err != nil && !errors.Is(err, scan.ErrNotRunning) {
			m.logger.Warn("[SESSION] failed to stop scan before delete", zap.String("session_id", sessionID), zap.Error(err))
		}
		a.mu.Lock()
		a.session.Status = ScanStatusStopped
		m.release(sessionID)
		a.mu.Unlock()
	}

	if err := m.cache.DeleteSession(ctx, sessionID); err != nil {
		m.logger.Warn("[SESSION] failed to delete session from cache", zap.String("session_id", sessionID), zap.Error(err))
	}
	for _, f := range m.sinks {
		if r, ok := f.(replayForgetter); ok {
			r.Forget(sessionID)
		}
	}
	if err := m.repository.DeleteScan(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete scan from database: %w", err)
	}

	m.logger.Info("[SESSION] scan deleted", zap.String("session_id", sessionID))
	return nil
}

// Streak reports the user's run of consecutive days with a completed scan.
func (m *Manager) Streak(ctx context.Context, userID string) (Streak, error) {
	now := m.now()
	dates, err := m.repository.ScanDates(ctx, userOrAnonymous(userID), now.Add(-streakLookback))
	if err != nil {
		return Streak{}, err
	}
	return ComputeStreak(dates, now, m.loc), nil
}

// Score runs the risk engine on caller-supplied vitals.
func (m *Manager) Score(req ScoreRequest) ScoreResponse {
	score := risk.Calculate(req.Baseline, req.Metrics)
	return ScoreResponse{Score: score, Triage: risk.Triage(score.Level)}
}

// ActiveCount returns the number of running scans.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Shutdown stops every running scan.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	if len(ids) > 0 {
		m.logger.Info("[SESSION] stopping active scans", zap.Int("active", len(ids)))
	}
	for _, id := range ids {
		if _, err := m.StopScan(ctx, id); err != nil && !errors.Is(err, ErrSessionInactive) {
			m.logger.Warn("[SESSION] failed to stop scan on shutdown", zap.String("session_id", id), zap.Error(err))
		}
	}
}

func (m *Manager) lookup(sessionID string) (*activeScan, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.active[sessionID]
	return a, ok
}

func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	delete(m.active, sessionID)
	m.mu.Unlock()
}

func (m *Manager) expire(ctx context.Context, sessionID string) {
	if m.ttl <= 0 {
		return
	}
	if err := m.cache.SetSessionTTL(ctx, sessionID, m.ttl); err != nil {
		m.logger.Warn("[SESSION] failed to set session TTL", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// progress records one window of a running scan.
func (m *Manager) progress(ctx context.Context, a *activeScan, p scan.Progress) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session.Status != ScanStatusActive {
		return nil
	}

	if err := m.cache.AppendProgress(ctx, a.session.ID, p); err != nil {
		return fmt.Errorf("failed to append progress: %w", err)
	}
	a.session.Windows = p.Elapsed
	return m.cache.SetSession(ctx, a.session)
}

// finish records a terminal outcome in the cache and in history.
func (m *Manager) finish(ctx context.Context, a *activeScan, o scan.Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session.Status != ScanStatusActive {
		return nil
	}

	id := a.session.ID
	finished := o.FinishedAt
	if finished.IsZero() {
		finished = m.now()
	}
	a.session.Status = statusFor(o.State)
	a.session.StoppedAt = &finished
	a.session.TotalDurationMs = finished.Sub(a.session.StartedAt).Milliseconds()
	m.release(id)

	// the session status is written last so readers never see a final
	// status before the outcome and history exist
	var errs []error
	if err := m.repository.SaveScan(ctx, RecordFrom(a.session, o)); err != nil {
		errs = append(errs, fmt.Errorf("failed to save scan to database: %w", err))
	}
	if err := m.cache.SetOutcome(ctx, id, o); err != nil {
		errs = append(errs, fmt.Errorf("failed to cache outcome: %w", err))
	}
	if err := m.cache.SetSession(ctx, a.session); err != nil {
		errs = append(errs, fmt.Errorf("failed to update session in cache: %w", err))
	}
	m.expire(ctx, id)

	fields := []zap.Field{
		zap.String("session_id", id),
		zap.String("status", string(a.session.Status)),
		zap.Int64("duration_ms", a.session.TotalDurationMs),
	}
	if o.Score != nil {
		fields = append(fields, zap.Int("score", o.Score.Total), zap.String("triage", string(o.Triage)))
	}
	if o.Code != scan.CodeNone {
		fields = append(fields, zap.String("code", string(o.Code)))
	}
	m.logger.Info("[SESSION] scan finished", fields...)

	return errors.Join(errs...)
}

func (a *activeScan) copySession() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := *a.session
	return &s
}

// sessionSink ties a scanner's events to its session.
type sessionSink struct {
	m *Manager
	a *activeScan
}

func (s *sessionSink) Progress(ctx context.Context, p scan.Progress) error {
	return s.m.progress(ctx, s.a, p)
}

func (s *sessionSink) Complete(ctx context.Context, o scan.Outcome) error {
	return s.m.finish(ctx, s.a, o)
}

func (s *sessionSink) Abort(ctx context.Context, o scan.Outcome) error {
	return s.m.finish(ctx, s.a, o)
}

// cachedBaseline reads the user's latest baseline from the cache.
type cachedBaseline struct {
	cache  CacheStore
	userID string
}

func (c *cachedBaseline) Baseline(ctx context.Context) (risk.Baseline, bool) {
	b, err := c.cache.GetBaseline(ctx, c.userID)
	if err != nil || b == nil {
		return risk.Baseline{}, false
	}
	return *b, true
}

func sessionFromRecord(rec *Record) *Session {
	finished := rec.FinishedAt
	return &Session{
		ID:              rec.SessionID,
		UserID:          rec.UserID,
		Mode:            rec.Mode,
		Status:          rec.Status,
		StartedAt:       rec.StartedAt,
		StoppedAt:       &finished,
		TotalDurationMs: finished.Sub(rec.StartedAt).Milliseconds(),
		Metadata:        rec.Metadata,
	}
}
