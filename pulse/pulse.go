// Package pulse fans crank pulse events out to in-process consumers. The
// session manager and the live telemetry counter both observe the same
// pulse stream without the sensor wrapper knowing about either.
package pulse

import (
	"context"
	"sync"
	"time"
)

// Event is one crank revolution.
type Event struct {
	// Time is when the revolution was detected.
	Time time.Time
}

// Broker delivers every published event to every subscriber. Delivery is
// best effort: a subscriber that cannot keep up loses events rather than
// stalling the pulse path.
type Broker struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

type subscription struct {
	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{subs: make(map[*subscription]struct{})}
}

// Publish delivers ev to all current subscribers.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		case <-sub.ctx.Done():
			delete(b.subs, sub)
		default:
			// Subscriber buffer full; pulses arrive at pedaling cadence so a
			// stalled consumer is already far behind.
		}
	}
}

// Subscribe registers a consumer. The channel closes when cancel is called
// or ctx is done.
func (b *Broker) Subscribe(ctx context.Context) (<-chan Event, context.CancelFunc) {
	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		ch:     make(chan Event, 16),
		ctx:    sctx,
		cancel: cancel,
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-sctx.Done()
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch, cancel
}
