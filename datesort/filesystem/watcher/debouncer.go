package watcher

import (
	"context"
	"sync"
	"time"
)

// Debouncer coalesces events into batches. A batch is emitted once no event
// has arrived for the debounce delay, or once maxDelay has passed since the
// first event of the batch, whichever comes first.
type Debouncer struct {
	delay    time.Duration
	maxDelay time.Duration

	eventChan chan []Event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	pending []Event
	first   time.Time
	timer   *time.Timer
	closed  bool
}

// NewDebouncer creates a new debouncer
func NewDebouncer(delay, maxDelay time.Duration) *Debouncer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Debouncer{
		delay:     delay,
		maxDelay:  maxDelay,
		eventChan: make(chan []Event, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Add adds an event to the pending batch and restarts the quiet timer
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if len(d.pending) == 0 {
		d.first = time.Now()
	}
	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}

	wait := d.delay
	if d.maxDelay > 0 {
		remaining := d.maxDelay - time.Since(d.first)
		if remaining < 0 {
			remaining = 0
		}
		if remaining < wait {
			wait = remaining
		}
	}
	d.timer = time.AfterFunc(wait, d.flush)
}

// Events returns the debounced batches channel
func (d *Debouncer) Events() <-chan []Event {
	return d.eventChan
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.closed || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := d.pending
	d.pending = nil
	d.timer = nil
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	select {
	case d.eventChan <- batch:
	case <-d.ctx.Done():
	}
}

// Close stops the debouncer and drops any pending events
func (d *Debouncer) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cancel()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
	d.mu.Unlock()

	d.wg.Wait()
	close(d.eventChan)
}
