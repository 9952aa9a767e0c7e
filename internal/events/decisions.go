// Package events fans domain events out to in-process subscribers via
// buffered channels. Slow readers are dropped, never waited on.
package events

import (
	"sync"

	"github.com/vadiminshakov/verdict/internal/domain"
)

// DecisionBroadcaster distributes trade decisions to all subscribers.
type DecisionBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.TradeDecision]struct{}
	buffer int
}

// NewDecisionBroadcaster creates a broadcaster with the given per-subscriber
// buffer.
func NewDecisionBroadcaster(buffer int) *DecisionBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &DecisionBroadcaster{
		subs:   make(map[chan domain.TradeDecision]struct{}),
		buffer: buffer,
	}
}

// Publish sends the decision to all subscribers, dropping for slow readers.
func (b *DecisionBroadcaster) Publish(d domain.TradeDecision) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- d:
		default:
		}
	}
}

// Subscribe returns a channel receiving decisions until Unsubscribe.
func (b *DecisionBroadcaster) Subscribe() chan domain.TradeDecision {
	ch := make(chan domain.TradeDecision, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes the channel.
func (b *DecisionBroadcaster) Unsubscribe(ch chan domain.TradeDecision) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
