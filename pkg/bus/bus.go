// Package bus implements the process-wide notification channel the
// preference service publishes to after successful mutations. Topics carry
// no payload; subscribers re-list the affected collection on receipt.
//
// Delivery is synchronous and best-effort: a subscriber registered after an
// event fires simply misses it, which is acceptable because every consumer
// lists the current state when it attaches.
package bus

import "sync"

// Topic names an event channel.
type Topic string

const (
	// FavoritesChanged fires after a favorite person or company is added
	// or removed.
	FavoritesChanged Topic = "favorites.changed"
	// SavedFiltersChanged fires after a saved filter is created or
	// deleted.
	SavedFiltersChanged Topic = "saved_filters.changed"
)

// Bus is an in-memory publish/subscribe fan-out. The zero value is not
// usable; create one with [New].
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[Topic]map[int]func()
}

func New() *Bus {
	return &Bus{subs: make(map[Topic]map[int]func())}
}

// Subscribe registers fn for topic and returns a cancel function that
// removes the subscription. fn runs on the publisher's goroutine.
func (b *Bus) Subscribe(topic Topic, fn func()) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func())
	}
	id := b.next
	b.next++
	b.subs[topic][id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish invokes every current subscriber of topic synchronously.
func (b *Bus) Publish(topic Topic) {
	b.mu.RLock()
	fns := make([]func(), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
