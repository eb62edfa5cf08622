package queue

import (
	"context"
	"fmt"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// DueQueue dispatches due instances to one of two buffered channels based on
// their schedule kind.
//
// Buffer sizes reflect the two traffic shapes:
//
//	Alert: 1 000  minute-resolution delta chains; must never accumulate,
//	              so a small buffer applies back-pressure quickly
//	Timed: 5 000  calendar sends, bulk of the volume around popular
//	              local times (noon, start of hour)
//
// Workers dequeue via the double-select pattern, which guarantees that alert
// items are always served before timed ones, while still allowing the worker
// to sleep instead of spinning when both tiers are empty.
type DueQueue struct {
	alert chan Item
	timed chan Item
}

func New() *DueQueue {
	return &DueQueue{
		alert: make(chan Item, 1000),
		timed: make(chan Item, 5000),
	}
}

// Enqueue places an item on the channel for its schedule kind.
// It is non-blocking: if the target channel is full, ErrQueueFull is
// returned immediately rather than blocking the caller. The sweep will pick
// the instance up again on its next tick, so a dropped enqueue delays the
// send instead of losing it.
func (q *DueQueue) Enqueue(item Item) error {
	switch item.Kind {
	case scheduling.KindAlert:
		select {
		case q.alert <- item:
			return nil
		default:
			return scheduling.ErrQueueFull
		}
	case scheduling.KindTimed:
		select {
		case q.timed <- item:
			return nil
		default:
			return scheduling.ErrQueueFull
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", item.Kind)
	}
}

// Dequeue blocks until an item is available or ctx is cancelled.
//
// Priority guarantee, via the double-select pattern:
//  1. A non-blocking select checks the alert channel first. If an item is
//     waiting there, it is returned immediately regardless of the timed tier.
//  2. Only when alert is empty does the goroutine enter a fair blocking
//     select across both channels plus the done signal. This prevents alert
//     starvation while still letting the worker sleep instead of spinning.
//
// Returns (Item{}, false) when ctx is cancelled (graceful shutdown signal).
func (q *DueQueue) Dequeue(ctx context.Context) (Item, bool) {
	// Step 1: drain alerts before entering a fair wait.
	select {
	case item := <-q.alert:
		return item, true
	default:
	}

	// Step 2: fair competition when alert is empty.
	select {
	case item := <-q.alert:
		return item, true
	case item := <-q.timed:
		return item, true
	case <-ctx.Done():
		return Item{}, false
	}
}

// Depths returns the current number of items waiting in each tier.
// Used by the metrics handler for the queue-depth snapshot.
func (q *DueQueue) Depths() (alert, timed int) {
	return len(q.alert), len(q.timed)
}
