package client

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/gosuda/fanout/pkg/clock"
)

const (
	DefaultBatchSize  = 100
	DefaultBatchQuiet = 50 * time.Millisecond
)

type batched[T any] struct {
	item T
	seq  uint64
	at   time.Time
}

// Batcher coalesces items into ordered batches. A batch is delivered when the
// buffer reaches its size limit or when no item has arrived for the quiet
// period. With a key function only the newest item per key survives a flush:
// the highest sequence wins and the later timestamp breaks ties.
type Batcher[T any] struct {
	handler func([]T)
	clock   clock.Clock
	maxSize int
	quiet   time.Duration
	key     func(T) string
	stamp   func(T) (time.Time, bool)

	mu      sync.Mutex
	buf     []batched[T]
	seq     uint64
	timer   clock.Timer
	gen     uint64
	stopped bool

	// deliver serializes handler calls so batches arrive in flush order.
	deliver sync.Mutex
}

// BatchOption configures a Batcher.
type BatchOption[T any] func(*Batcher[T])

// WithBatchClock replaces the wall clock used for timestamps and debounce.
func WithBatchClock[T any](c clock.Clock) BatchOption[T] {
	return func(b *Batcher[T]) { b.clock = c }
}

// WithBatchSize sets the buffer size that forces an immediate flush.
func WithBatchSize[T any](n int) BatchOption[T] {
	return func(b *Batcher[T]) {
		if n > 0 {
			b.maxSize = n
		}
	}
}

// WithBatchQuiet sets the debounce period.
func WithBatchQuiet[T any](d time.Duration) BatchOption[T] {
	return func(b *Batcher[T]) {
		if d > 0 {
			b.quiet = d
		}
	}
}

// WithDedupKey keeps only the newest item per key in each batch.
func WithDedupKey[T any](key func(T) string) BatchOption[T] {
	return func(b *Batcher[T]) { b.key = key }
}

// WithTimestamp supplies the observed time of an item. Items without one
// are stamped with the clock.
func WithTimestamp[T any](stamp func(T) (time.Time, bool)) BatchOption[T] {
	return func(b *Batcher[T]) { b.stamp = stamp }
}

// NewBatcher creates a Batcher delivering to handler.
func NewBatcher[T any](handler func([]T), opts ...BatchOption[T]) *Batcher[T] {
	b := &Batcher[T]{
		handler: handler,
		clock:   clock.Real(),
		maxSize: DefaultBatchSize,
		quiet:   DefaultBatchQuiet,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Wrap returns a handler that feeds the batcher.
func (b *Batcher[T]) Wrap() func(T) {
	return b.Add
}

// Add buffers item under the next sequence number.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	b.seq++
	b.appendLocked(item, b.seq)
}

// AddWithSequence buffers item under a caller-assigned sequence number.
// Later Add calls continue above the highest sequence seen.
func (b *Batcher[T]) AddWithSequence(item T, seq uint64) {
	b.mu.Lock()
	if seq > b.seq {
		b.seq = seq
	}
	b.appendLocked(item, seq)
}

// appendLocked is entered with b.mu held and releases it.
func (b *Batcher[T]) appendLocked(item T, seq uint64) {
	at, ok := time.Time{}, false
	if b.stamp != nil {
		at, ok = b.stamp(item)
	}
	if !ok {
		at = b.clock.Now()
	}

	if b.stopped {
		b.mu.Unlock()
		b.deliver.Lock()
		defer b.deliver.Unlock()
		b.handler([]T{item})
		return
	}

	b.buf = append(b.buf, batched[T]{item: item, seq: seq, at: at})
	if len(b.buf) >= b.maxSize {
		b.mu.Unlock()
		b.Flush()
		return
	}

	stopTimer(&b.timer)
	b.gen++
	gen := b.gen
	b.timer = b.clock.AfterFunc(b.quiet, func() { b.quietElapsed(gen) })
	b.mu.Unlock()
}

func (b *Batcher[T]) quietElapsed(gen uint64) {
	b.mu.Lock()
	stale := gen != b.gen
	b.mu.Unlock()
	if !stale {
		b.Flush()
	}
}

// Flush delivers everything buffered so far as one batch.
func (b *Batcher[T]) Flush() {
	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.mu.Lock()
	stopTimer(&b.timer)
	b.gen++
	buf := b.buf
	b.buf = nil
	b.mu.Unlock()

	if len(buf) == 0 {
		return
	}

	items := order(buf, b.key)
	b.handler(items)
}

// Stop flushes pending items. Items added afterwards are delivered one at a
// time without batching.
func (b *Batcher[T]) Stop() {
	b.Flush()
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
}

// Pending returns the number of buffered items.
func (b *Batcher[T]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func order[T any](buf []batched[T], key func(T) string) []T {
	if key != nil {
		latest := make(map[string]int, len(buf))
		kept := buf[:0:0]
		for _, e := range buf {
			k := key(e.item)
			i, seen := latest[k]
			if !seen {
				latest[k] = len(kept)
				kept = append(kept, e)
				continue
			}
			if newer(e, kept[i]) {
				kept[i] = e
			}
		}
		buf = kept
	}

	slices.SortStableFunc(buf, func(a, b batched[T]) int {
		if c := cmp.Compare(a.seq, b.seq); c != 0 {
			return c
		}
		return a.at.Compare(b.at)
	})

	items := make([]T, len(buf))
	for i, e := range buf {
		items[i] = e.item
	}
	return items
}

func newer[T any](a, b batched[T]) bool {
	if a.seq != b.seq {
		return a.seq > b.seq
	}
	return !a.at.Before(b.at)
}
