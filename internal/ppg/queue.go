package ppg

import (
	"sync/atomic"
	"time"
)

// QueueItem is either a beat or a reset marker telling the consumer to drop
// its beat history because the signal was lost.
type QueueItem struct {
	Beat  BeatEvent
	Reset bool
}

// BeatQueue carries beats from the frame task (single producer) to the
// aggregator (single consumer). The producer never blocks: when the queue is
// full the beat is dropped and counted.
type BeatQueue struct {
	ch      chan QueueItem
	dropped atomic.Int64
}

func NewBeatQueue(capacity int) *BeatQueue {
	if capacity < 1 {
		capacity = 64
	}
	return &BeatQueue{ch: make(chan QueueItem, capacity)}
}

// PushBeat enqueues a beat detected at ts.
func (q *BeatQueue) PushBeat(ts time.Time) bool {
	return q.push(QueueItem{Beat: BeatEvent{Timestamp: ts}})
}

// PushReset enqueues a reset marker.
func (q *BeatQueue) PushReset() bool {
	return q.push(QueueItem{Reset: true})
}

func (q *BeatQueue) push(item QueueItem) bool {
	select {
	case q.ch <- item:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Drain takes everything currently queued without blocking.
func (q *BeatQueue) Drain() []QueueItem {
	var items []QueueItem
	for {
		select {
		case item := <-q.ch:
			items = append(items, item)
		default:
			return items
		}
	}
}

// Dropped returns how many items were lost to a full queue.
func (q *BeatQueue) Dropped() int64 {
	return q.dropped.Load()
}

// Clear discards queued items and the drop counter. Call it only while
// neither side is running.
func (q *BeatQueue) Clear() {
	q.Drain()
	q.dropped.Store(0)
}
