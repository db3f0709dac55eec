package playercount

import "sync"

// Batch is a drained set of buffered samples, all sharing one day key.
type Batch struct {
	DayKey  string
	Samples []Sample
}

// Buffer accumulates samples for the current day until a flush drains it.
// The original pipeline relied on cooperative scheduling for exclusivity;
// here timer goroutines can genuinely overlap, so a mutex guards the state.
type Buffer struct {
	mu      sync.Mutex
	pending []Sample
	dayKey  string
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends a sample. If the sample belongs to a different calendar day
// than the buffered ones, the old day is drained first and returned so the
// caller can flush it before the new day starts accumulating. Mixed-day
// buffers are never allowed.
func (b *Buffer) Add(sample Sample) *Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := sample.DayKey()
	var rolled *Batch
	if b.dayKey != "" && b.dayKey != key && len(b.pending) > 0 {
		rolled = &Batch{DayKey: b.dayKey, Samples: b.pending}
		b.pending = nil
	}
	b.dayKey = key
	b.pending = append(b.pending, sample)
	return rolled
}

// Drain atomically returns and clears the buffer. Returns nil when empty.
func (b *Buffer) Drain() *Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}
	batch := &Batch{DayKey: b.dayKey, Samples: b.pending}
	b.pending = nil
	b.dayKey = ""
	return batch
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
