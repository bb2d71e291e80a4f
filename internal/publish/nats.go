package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Krimson/strokeguard/internal/scan"
)

const DefaultNATSSubject = "strokeguard.scans"

// natsConn is the part of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes scan events on <prefix>.<session>.<type>.
type NATSPublisher struct {
	conn   natsConn
	prefix string
	logger *zap.Logger
}

// ConnectNATS dials the server and keeps reconnecting forever.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

func NewNATSPublisher(conn natsConn, prefix string, logger *zap.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultNATSSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject of one event type of a session.
func (p *NATSPublisher) Subject(sessionID string, t EventType) string {
	return p.prefix + "." + sessionID + "." + string(t)
}

func (p *NATSPublisher) ForSession(sessionID string) scan.Sink {
	return &natsSink{p: p, sessionID: sessionID}
}

func (p *NATSPublisher) publish(ctx context.Context, e Event, flush bool) error {
	data, err := e.encode()
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", e.Type, err)
	}
	subject := p.Subject(e.SessionID, e.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	// final events are flushed so they are not lost on shutdown
	if flush {
		if err := p.conn.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("failed to flush %s: %w", subject, err)
		}
	}
	p.logger.Debug("[NATS] event published", zap.String("subject", subject))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

type natsSink struct {
	p         *NATSPublisher
	sessionID string
}

func (s *natsSink) Progress(ctx context.Context, pr scan.Progress) error {
	return s.p.publish(ctx, progressEvent(s.sessionID, pr), false)
}

func (s *natsSink) Complete(ctx context.Context, o scan.Outcome) error {
	return s.p.publish(ctx, outcomeEvent(EventComplete, s.sessionID, o), true)
}

func (s *natsSink) Abort(ctx context.Context, o scan.Outcome) error {
	return s.p.publish(ctx, outcomeEvent(EventAbort, s.sessionID, o), true)
}
