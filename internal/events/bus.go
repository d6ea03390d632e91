package events

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/prn-tf/cinelog/internal/domain"
)

// Bus is a copy-on-write listener registry.
// Notifications iterate an immutable snapshot, so listeners may be added or
// removed from inside a callback without affecting the delivery in progress.
type Bus struct {
	mu        sync.Mutex
	listeners atomic.Pointer[[]Listener]
	logger    zerolog.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger zerolog.Logger) *Bus {
	b := &Bus{logger: logger.With().Str("component", "events").Logger()}
	empty := []Listener{}
	b.listeners.Store(&empty)
	return b
}

// Add registers l. Nil and already registered listeners are ignored.
// Listeners of a non-comparable type are never treated as duplicates.
func (b *Bus) Add(l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.listeners.Load()
	for _, existing := range cur {
		if sameListener(existing, l) {
			return
		}
	}
	next := make([]Listener, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, l)
	b.listeners.Store(&next)
}

// Remove unregisters l. Unknown and nil listeners are ignored, as are
// listeners of a non-comparable type; register those by pointer to remove them.
func (b *Bus) Remove(l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.listeners.Load()
	for i, existing := range cur {
		if sameListener(existing, l) {
			next := make([]Listener, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			b.listeners.Store(&next)
			return
		}
	}
}

// sameListener reports whether a and b are the same registration. Comparing
// interfaces holding slices, maps or funcs panics, so those never match.
func sameListener(a, b Listener) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	return len(*b.listeners.Load())
}

// Added notifies every listener that review was inserted.
func (b *Bus) Added(review *domain.Review) {
	b.publish("added", func(l Listener) { l.OnAdded(review) })
}

// Updated notifies every listener that review was changed.
func (b *Bus) Updated(review *domain.Review) {
	b.publish("updated", func(l Listener) { l.OnUpdated(review) })
}

// Deleted notifies every listener that the review with id was removed.
func (b *Bus) Deleted(id int64) {
	b.publish("deleted", func(l Listener) { l.OnDeleted(id) })
}

// BulkDeleted notifies every listener that count reviews were removed.
func (b *Bus) BulkDeleted(count int) {
	b.publish("bulk_deleted", func(l Listener) { l.OnBulkDeleted(count) })
}

// Cleared notifies every listener that all reviews were removed.
func (b *Bus) Cleared() {
	b.publish("cleared", func(l Listener) { l.OnCleared() })
}

func (b *Bus) publish(event string, call func(Listener)) {
	for _, l := range *b.listeners.Load() {
		b.deliver(event, l, call)
	}
}

func (b *Bus) deliver(event string, l Listener, call func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn().
				Str("event", event).
				Str("listener", fmt.Sprintf("%T", l)).
				Interface("panic", r).
				Msg("listener failed")
		}
	}()
	call(l)
}
