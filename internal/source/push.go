package source

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Krimson/strokeguard/internal/ppg"
	"github.com/Krimson/strokeguard/internal/scan"
)

// Push is a frame source fed by the host, for example from frames uploaded
// over HTTP. Next blocks until a frame is pushed. When the buffer is full the
// oldest frame is discarded, so a stalled scan never holds stale video.
type Push struct {
	mu     sync.Mutex
	frames chan ppg.Frame
	closed chan struct{}
	open   bool
	seq    uint64

	dropped atomic.Int64
	size    int
}

func NewPush(buffer int) *Push {
	if buffer < 1 {
		buffer = 8
	}
	return &Push{size: buffer}
}

func (p *Push) Open(ctx context.Context, mode ppg.Mode, cfg scan.CaptureConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return fmt.Errorf("push source: %w", scan.ErrDeviceBusy)
	}
	p.open = true
	p.seq = 0
	p.frames = make(chan ppg.Frame, p.size)
	p.closed = make(chan struct{})
	return nil
}

// PushFrame hands a frame to the running scan. A zero ts means now. It
// returns false when no scan holds the source.
func (p *Push) PushFrame(img image.Image, ts time.Time) bool {
	if ts.IsZero() {
		ts = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return false
	}

	f := ppg.Frame{Seq: p.seq, Timestamp: ts, Image: img}
	p.seq++
	for {
		select {
		case p.frames <- f:
			return true
		default:
		}
		select {
		case <-p.frames:
			p.dropped.Add(1)
		default:
		}
	}
}

func (p *Push) Next(ctx context.Context) (ppg.Frame, error) {
	p.mu.Lock()
	frames, closed := p.frames, p.closed
	p.mu.Unlock()
	if frames == nil {
		return ppg.Frame{}, scan.ErrSourceExhausted
	}

	select {
	case f := <-frames:
		return f, nil
	case <-closed:
		return ppg.Frame{}, scan.ErrSourceExhausted
	case <-ctx.Done():
		return ppg.Frame{}, ctx.Err()
	}
}

func (p *Push) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		p.open = false
		close(p.closed)
	}
	return nil
}

// Dropped returns how many pushed frames were discarded unread.
func (p *Push) Dropped() int64 {
	return p.dropped.Load()
}
