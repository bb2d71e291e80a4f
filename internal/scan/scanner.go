package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Krimson/strokeguard/internal/ppg"
	"github.com/Krimson/strokeguard/internal/risk"
)

const defaultSinkTimeout = 5 * time.Second

type Option func(*Scanner)

func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBaselineProvider makes the scanner ask p for the baseline on every
// aggregation before falling back to the value passed to SetBaseline.
func WithBaselineProvider(p BaselineProvider) Option {
	return func(s *Scanner) { s.provider = p }
}

func WithSinkTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.sinkTimeout = d
		}
	}
}

// Scanner runs one scan at a time against a single frame source.
type Scanner struct {
	source      FrameSource
	sink        Sink
	provider    BaselineProvider
	logger      *zap.Logger
	sinkTimeout time.Duration

	baseline atomic.Pointer[risk.Baseline]

	// startMu serialises Start and Stop; mu guards the fields below.
	startMu sync.Mutex
	mu      sync.Mutex
	state   State
	cur     *run
	last    *Outcome
}

// run holds everything owned by a single scan. A new run is built on every
// Start, so no buffer survives into the next scan.
type run struct {
	mode ppg.Mode
	cfg  CaptureConfig

	pipeline *ppg.Pipeline
	queue    *ppg.BeatQueue
	agg      *ppg.Aggregator

	cancel     context.CancelFunc
	stopFrames context.CancelFunc
	framesDone chan struct{}
	wg         sync.WaitGroup

	status  atomic.Value // ppg.Status
	frames  atomic.Uint64
	live    atomic.Pointer[ppg.BatchResult]
	restart atomic.Bool

	startedAt time.Time
	once      sync.Once
	done      chan struct{}
}

func NewScanner(source FrameSource, sink Sink, opts ...Option) *Scanner {
	s := &Scanner{
		source:      source,
		sink:        sink,
		logger:      zap.NewNop(),
		sinkTimeout: defaultSinkTimeout,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = &LogSink{Logger: s.logger}
	}
	return s
}

// SetBaseline stores the lifestyle baseline. It may be called at any time;
// the next aggregation picks it up.
func (s *Scanner) SetBaseline(b risk.Baseline) {
	s.baseline.Store(&b)
}

// Start acquires the source and begins scanning in the background. ctx only
// bounds acquisition; the scan itself runs until it finishes or Stop is
// called. An acquisition failure moves the scanner to StateFailed, is
// reported to the sink and returned.
func (s *Scanner) Start(ctx context.Context, mode ppg.Mode, cfg CaptureConfig) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	prev := s.cur
	if prev != nil && !s.state.Terminal() {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
		prev.wg.Wait()
	}

	cfg = cfg.withDefaults()
	queue := ppg.NewBeatQueue(cfg.QueueSize)
	pcfg := ppg.DefaultConfig(mode)
	pcfg.BufferSize = cfg.FPS * 3
	pcfg.SeriesSize = cfg.FPS * int(cfg.Duration()/time.Second)
	pipeline, err := ppg.NewPipeline(pcfg, queue)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	frameCtx, stopFrames := context.WithCancel(runCtx)
	r := &run{
		mode:       mode,
		cfg:        cfg,
		pipeline:   pipeline,
		queue:      queue,
		agg:        ppg.NewAggregator(ppg.DefaultAggregatorConfig()),
		cancel:     cancel,
		stopFrames: stopFrames,
		framesDone: make(chan struct{}),
		startedAt:  time.Now(),
		done:       make(chan struct{}),
	}
	r.status.Store(ppg.StatusWarmingUp)

	s.mu.Lock()
	s.cur = r
	s.state = StateIdle
	s.last = nil
	s.mu.Unlock()

	if err := s.source.Open(ctx, mode, cfg); err != nil {
		err = fmt.Errorf("open frame source: %w", err)
		cancel()
		close(r.framesDone)
		s.fail(r, err)
		return err
	}

	s.setState(r, StateArmed)
	s.logger.Info("[SCAN] started",
		zap.String("mode", string(mode)),
		zap.Int("fps", cfg.FPS),
		zap.Duration("window", cfg.Window),
		zap.Int("windows", cfg.Windows))

	r.wg.Add(2)
	go s.frameLoop(frameCtx, r)
	go s.aggregateLoop(runCtx, r)
	return nil
}

// Stop cancels the running scan, waits for its goroutines, releases the
// source and returns the scanner to idle. A stopped scan produces no outcome.
func (s *Scanner) Stop() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return ErrNotRunning
	}

	r.cancel()
	r.wg.Wait()
	r.once.Do(func() {
		s.closeSource()
		close(r.done)
	})
	r.pipeline.Reset()
	r.queue.Clear()
	r.agg.Reset()

	s.mu.Lock()
	if s.cur == r {
		s.cur = nil
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.logger.Info("[SCAN] stopped", zap.String("mode", string(r.mode)))
	return nil
}

func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot is a point-in-time view of the scanner.
type Snapshot struct {
	State     State            `json:"state"`
	Mode      ppg.Mode         `json:"mode,omitempty"`
	Status    ppg.Status       `json:"status,omitempty"`
	Frames    uint64           `json:"frames"`
	Live      *ppg.BatchResult `json:"live,omitempty"`
	StartedAt time.Time        `json:"started_at,omitempty"`
}

func (s *Scanner) Snapshot() Snapshot {
	s.mu.Lock()
	r, state := s.cur, s.state
	s.mu.Unlock()

	snap := Snapshot{State: state}
	if r != nil {
		snap.Mode = r.mode
		snap.Status, _ = r.status.Load().(ppg.Status)
		snap.Frames = r.frames.Load()
		snap.Live = r.live.Load()
		snap.StartedAt = r.startedAt
	}
	return snap
}

// Done is closed when the current scan ends for any reason. With no scan it
// returns a closed channel.
func (s *Scanner) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.cur.done
}

// Outcome returns the terminal report of the last finished scan.
func (s *Scanner) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Outcome{}, false
	}
	return *s.last, true
}

// Wait blocks until the current scan ends or ctx is done.
func (s *Scanner) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.Done():
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	if o, ok := s.Outcome(); ok {
		return o, nil
	}
	return Outcome{}, ErrNotRunning
}

// frameLoop is the producer side. The ticker drops ticks while a frame is
// still being processed, so a slow frame never builds a backlog.
func (s *Scanner) frameLoop(ctx context.Context, r *run) {
	defer r.wg.Done()
	defer close(r.framesDone)

	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := s.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrSourceExhausted) {
				s.logger.Info("[SCAN] frame source exhausted", zap.Uint64("frames", r.frames.Load()))
				return
			}
			s.fail(r, fmt.Errorf("read frame: %w", err))
			return
		}

		report, err := r.pipeline.ProcessFrame(frame)
		if err != nil {
			s.logger.Debug("[SCAN] frame skipped", zap.Error(err))
			continue
		}
		r.frames.Add(1)
		r.status.Store(report.Status)
		s.track(r, report.Status)

		if r.mode == ppg.ModeFingertip && r.cfg.LiveEvery > 0 && r.pipeline.Frames()%uint64(r.cfg.LiveEvery) == 0 {
			if est, err := r.pipeline.LiveEstimate(); err == nil {
				r.live.Store(&est)
			}
		}
	}
}

// track moves between Armed and Scanning as the signal comes and goes. A
// fingertip lifted mid-scan restarts the scan.
func (s *Scanner) track(r *run, status ppg.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != r || s.state.Terminal() {
		return
	}

	switch {
	case status.Failed():
		if s.state == StateScanning {
			s.state = StateArmed
			if r.mode == ppg.ModeFingertip {
				r.restart.Store(true)
				r.live.Store(nil)
			}
			s.logger.Info("[SCAN] signal lost", zap.String("status", string(status)))
		}
	case status == ppg.StatusDetecting || status == ppg.StatusGood:
		s.state = StateScanning
	}
}

// aggregateLoop is the consumer side: it drains beats every window and, on
// the last one, stops the frame loop and finalizes.
func (s *Scanner) aggregateLoop(ctx context.Context, r *run) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Window)
	defer ticker.Stop()

	elapsed := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r.restart.Swap(false) {
			r.agg.Reset()
			elapsed = 0
		}
		r.agg.Ingest(r.queue.Drain())
		elapsed++

		if w, ok := r.agg.Window(); ok {
			s.progress(ctx, r, w, elapsed)
		}

		if elapsed >= r.cfg.Windows {
			r.stopFrames()
			<-r.framesDone
			s.finalize(ctx, r)
			return
		}
	}
}

func (s *Scanner) progress(ctx context.Context, r *run, w ppg.WindowResult, elapsed int) {
	b, _ := s.currentBaseline(ctx)
	provisional := risk.Calculate(b, risk.Metrics{
		PulseRate:        w.PulseRate,
		SDNNMs:           w.PRV,
		PulseRateHistory: w.PulseRates,
		IsExercising:     r.cfg.Exercising,
	})
	status, _ := r.status.Load().(ppg.Status)

	p := Progress{
		Mode:        r.mode,
		State:       s.State(),
		Window:      w,
		Elapsed:     elapsed,
		Total:       r.cfg.Windows,
		Samples:     r.agg.Samples(),
		Status:      status,
		Live:        r.live.Load(),
		Provisional: &provisional,
		At:          time.Now(),
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.sinkTimeout)
	defer cancel()
	if err := s.sink.Progress(sctx, p); err != nil {
		s.logger.Error("[SCAN] progress sink failed", zap.Error(err))
	}
}

func (s *Scanner) finalize(ctx context.Context, r *run) {
	if dropped := r.queue.Dropped(); dropped > 0 {
		s.logger.Warn("[SCAN] beat queue overflowed", zap.Int64("dropped", dropped))
	}

	res, err := r.agg.Finalize(r.mode)
	if err != nil {
		s.finish(r, Outcome{State: StateAborted, Code: CodeFor(err), Error: err.Error()})
		return
	}
	res = r.pipeline.Complete(res)
	if res.LowConfidence {
		s.logger.Warn("[SCAN] low confidence result", zap.Float64("confidence", res.Confidence), zap.Bool("batch", res.Batch != nil))
	}

	o := Outcome{State: StateCompleted, Result: &res, LowConfidence: res.LowConfidence}
	b, ok := s.currentBaseline(ctx)
	if ok {
		o.Baseline = &b
	}
	score := risk.Calculate(b, MetricsFrom(res, r.cfg.Exercising))
	o.Score = &score
	o.Triage = risk.Triage(score.Level)
	s.finish(r, o)
}

// fail ends the run with an acquisition error.
func (s *Scanner) fail(r *run, err error) {
	r.cancel()
	s.logger.Error("[SCAN] acquisition failed", zap.String("code", string(CodeFor(err))), zap.Error(err))
	s.finish(r, Outcome{State: StateFailed, Code: CodeFor(err), Error: err.Error()})
}

// finish records the outcome once per run, releases the source and notifies
// the sink before waking waiters.
func (s *Scanner) finish(r *run, o Outcome) {
	r.once.Do(func() {
		o.Mode = r.mode
		o.StartedAt = r.startedAt
		o.FinishedAt = time.Now()

		s.closeSource()

		s.mu.Lock()
		if s.cur == r {
			s.state = o.State
			s.last = &o
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.sinkTimeout)
		var err error
		if o.State == StateCompleted {
			err = s.sink.Complete(ctx, o)
		} else {
			err = s.sink.Abort(ctx, o)
		}
		cancel()
		if err != nil {
			s.logger.Error("[SCAN] outcome sink failed", zap.Error(err))
		}

		close(r.done)
	})
}

func (s *Scanner) setState(r *run, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == r && !s.state.Terminal() {
		s.state = st
	}
}

func (s *Scanner) closeSource() {
	if err := s.source.Close(); err != nil {
		s.logger.Warn("[SCAN] failed to close frame source", zap.Error(err))
	}
}

func (s *Scanner) currentBaseline(ctx context.Context) (risk.Baseline, bool) {
	if s.provider != nil {
		if b, ok := s.provider.Baseline(ctx); ok {
			return b, true
		}
	}
	if b := s.baseline.Load(); b != nil {
		return *b, true
	}
	return risk.Baseline{}, false
}
