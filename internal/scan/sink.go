package scan

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes every event to the log.
type LogSink struct {
	Logger *zap.Logger
}

func (ls *LogSink) Progress(ctx context.Context, p Progress) error {
	ls.Logger.Info("[SCAN] window",
		zap.String("mode", string(p.Mode)),
		zap.Int("window", p.Elapsed),
		zap.Int("of", p.Total),
		zap.Float64("pulse_rate", p.Window.PulseRate),
		zap.Float64("prv", p.Window.PRV),
		zap.Int("samples", p.Samples))
	return nil
}

func (ls *LogSink) Complete(ctx context.Context, o Outcome) error {
	fields := []zap.Field{zap.String("mode", string(o.Mode))}
	if o.Result != nil {
		fields = append(fields,
			zap.Float64("pulse_rate", o.Result.PulseRate),
			zap.Float64("median_pulse_rate", o.Result.MedianPulseRate),
			zap.Float64("prv", o.Result.PRV),
			zap.Float64("confidence", o.Result.Confidence),
			zap.Bool("low_confidence", o.LowConfidence))
	}
	if o.Score != nil {
		fields = append(fields, zap.Int("score", o.Score.Total), zap.String("level", string(o.Score.Level)))
	}
	ls.Logger.Info("[SCAN] completed", fields...)
	return nil
}

func (ls *LogSink) Abort(ctx context.Context, o Outcome) error {
	ls.Logger.Warn("[SCAN] ended without score",
		zap.String("mode", string(o.Mode)),
		zap.String("state", string(o.State)),
		zap.String("code", string(o.Code)),
		zap.String("error", o.Error))
	return nil
}

// CompositeSink fans events out to several sinks. A failing sink is logged
// and does not stop delivery to the rest.
type CompositeSink struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewCompositeSink(logger *zap.Logger, sinks ...Sink) *CompositeSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompositeSink{sinks: sinks, logger: logger}
}

// Add appends a sink. Not safe to call while a scan is running.
func (cs *CompositeSink) Add(s Sink) {
	cs.sinks = append(cs.sinks, s)
}

func (cs *CompositeSink) Progress(ctx context.Context, p Progress) error {
	for _, s := range cs.sinks {
		if err := s.Progress(ctx, p); err != nil {
			cs.logger.Error("sink failed to consume progress", zap.Error(err))
		}
	}
	return nil
}

func (cs *CompositeSink) Complete(ctx context.Context, o Outcome) error {
	for _, s := range cs.sinks {
		if err := s.Complete(ctx, o); err != nil {
			cs.logger.Error("sink failed to consume outcome", zap.Error(err))
		}
	}
	return nil
}

func (cs *CompositeSink) Abort(ctx context.Context, o Outcome) error {
	for _, s := range cs.sinks {
		if err := s.Abort(ctx, o); err != nil {
			cs.logger.Error("sink failed to consume abort", zap.Error(err))
		}
	}
	return nil
}
