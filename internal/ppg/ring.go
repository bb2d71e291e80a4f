package ppg

// Ring is a fixed-capacity FIFO that evicts the oldest element on overflow.
// It never reallocates after construction.
type Ring[T any] struct {
	buf   []T
	start int
	n     int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *Ring[T]) Len() int { return r.n }

func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th element, oldest first. Negative i counts from the newest.
func (r *Ring[T]) At(i int) T {
	if i < 0 {
		i += r.n
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// Snapshot copies the contents, oldest first.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.n)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start = 0
	r.n = 0
}

// ringStats returns mean, min and max of a float ring in one pass.
func ringStats(r *Ring[float64]) (mean, lo, hi float64) {
	if r.n == 0 {
		return 0, 0, 0
	}
	lo, hi = r.At(0), r.At(0)
	sum := 0.0
	for i := 0; i < r.n; i++ {
		v := r.At(i)
		sum += v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return sum / float64(r.n), lo, hi
}
