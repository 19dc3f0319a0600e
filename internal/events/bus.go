// Package events is a small typed in-process event bus used to fan out build
// progress to notifiers and other observers.
package events

import (
	"reflect"
	"sync"
	"sync/atomic"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/metrics"
)

// Bus delivers events to typed subscribers without ever blocking the
// publisher. A subscriber whose buffer is full misses the event; the drop is
// counted on the recorder.
//
// The bus is not durable. The status store remains the source of truth.
type Bus struct {
	mu        sync.RWMutex
	subs      map[reflect.Type]map[uint64]*subscriber
	nextID    atomic.Uint64
	isClosed  atomic.Bool
	closeOnce sync.Once
	recorder  metrics.Recorder
}

type subscriber struct {
	// offer attempts a non-blocking send; it is only called under the bus read lock.
	offer func(evt any) bool
	// close is only called under the bus write lock.
	close func()
}

// NewBus creates a bus. A nil recorder disables drop accounting.
func NewBus(recorder metrics.Recorder) *Bus {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Bus{
		subs:     make(map[reflect.Type]map[uint64]*subscriber),
		recorder: recorder,
	}
}

// Subscribe registers a subscription for events of type T.
//
// If T is an interface, published events whose concrete type implements T are
// delivered. For concrete T, the concrete type must match exactly.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	eventType := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	if b.isClosed.Load() {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID.Add(1)

	var closeOnce sync.Once
	closeChannel := func() {
		closeOnce.Do(func() { close(ch) })
	}

	sub := &subscriber{
		offer: func(evt any) bool {
			v, ok := evt.(T)
			if !ok {
				return false
			}
			select {
			case ch <- v:
				return true
			default:
				return false
			}
		},
		close: closeChannel,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed.Load() {
		closeChannel()
		return ch, func() {}
	}

	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[uint64]*subscriber)
	}
	b.subs[eventType][id] = sub

	var unsubOnce sync.Once
	unsubscribe := func() {
		unsubOnce.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if typeSubs, ok := b.subs[eventType]; ok {
				delete(typeSubs, id)
				if len(typeSubs) == 0 {
					delete(b.subs, eventType)
				}
			}
			closeChannel()
		})
	}

	return ch, unsubscribe
}

// SubscriberCount returns the number of active subscribers for events of type T.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}

	eventType := reflect.TypeFor[T]()

	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs[eventType])
}

// Publish offers evt to every matching subscriber and returns the number of
// subscribers that accepted it. It never blocks on a slow subscriber.
func (b *Bus) Publish(evt any) (int, error) {
	if evt == nil {
		return 0, ferrors.ValidationError("event cannot be nil").Build()
	}
	if b.isClosed.Load() {
		return 0, ferrors.DaemonError("event bus is closed").Build()
	}

	evtType := reflect.TypeOf(evt)
	delivered := 0
	dropped := 0

	b.mu.RLock()
	for subType, typeSubs := range b.subs {
		match := subType == evtType
		if !match && subType.Kind() == reflect.Interface {
			match = evtType.Implements(subType)
		}
		if !match {
			continue
		}
		for _, s := range typeSubs {
			if s.offer(evt) {
				delivered++
			} else {
				dropped++
			}
		}
	}
	b.mu.RUnlock()

	for range dropped {
		b.recorder.IncEventsDropped(evtType.Name())
	}
	return delivered, nil
}

// Close closes the bus and all subscription channels.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.isClosed.Store(true)

		b.mu.Lock()
		defer b.mu.Unlock()

		for _, typeSubs := range b.subs {
			for _, s := range typeSubs {
				s.close()
			}
		}
		b.subs = make(map[reflect.Type]map[uint64]*subscriber)
	})
}
