// Package events provides the bridge-wide event bus. Both backends and
// the routing layer publish change notifications here; consumers such as
// the HTTP event stream and the log bridge subscribe to them.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Type identifies a class of bridge event.
type Type string

const (
	// SpecsChanged fires after every successful spec registry rebuild.
	SpecsChanged Type = "specs.changed"
	// KernelsChanged fires with a merged running-kernel snapshot.
	KernelsChanged Type = "kernels.changed"
	// SessionsChanged fires with a merged running-session snapshot.
	SessionsChanged Type = "sessions.changed"
	// ConnectionFailure fires when the remote server cannot be reached.
	ConnectionFailure Type = "connection.failure"
)

// Event is a single bus notification.
type Event struct {
	Type      Type
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscription is a handle for a registered subscriber.
type Subscription struct {
	ID          string
	Type        Type
	Callback    func(*Event)
	Unsubscribe func()
}

// Bus distributes events to subscribers. Synchronous publication runs
// callbacks inline; asynchronous publication goes through a bounded
// queue drained by a single goroutine.
type Bus struct {
	subscribers  map[Type][]*Subscription
	mu           sync.RWMutex
	queue        chan *Event
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	nextID       int
}

// NewBus creates a bus and starts its async processor.
func NewBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subscribers: make(map[Type][]*Subscription),
		queue:       make(chan *Event, 256),
		ctx:         ctx,
		cancel:      cancel,
	}
	go b.processQueue()
	return b
}

// Subscribe registers a callback for one event type.
func (b *Bus) Subscribe(t Type, callback func(*Event)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		ID:       fmt.Sprintf("sub-%d", b.nextID),
		Type:     t,
		Callback: callback,
	}
	sub.Unsubscribe = func() { b.unsubscribe(sub) }
	b.subscribers[t] = append(b.subscribers[t], sub)
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.Type]
	for i, s := range subs {
		if s.ID == sub.ID {
			b.subscribers[sub.Type] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Publish distributes an event to all subscribers synchronously.
func (b *Bus) Publish(ev *Event) {
	if ev == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := b.subscribers[ev.Type]
	active := make([]*Subscription, len(subs))
	copy(active, subs)
	b.mu.RUnlock()

	for _, sub := range active {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("Panic in event subscriber for %s: %v", ev.Type, r)
				}
			}()
			sub.Callback(ev)
		}()
	}
}

// PublishAsync queues an event for asynchronous distribution. Events are
// dropped with a warning when the queue is full.
func (b *Bus) PublishAsync(ev *Event) {
	if ev == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	select {
	case <-b.ctx.Done():
		return
	case b.queue <- ev:
	default:
		log.Warnf("Event queue full, dropping event: %s", ev.Type)
	}
}

func (b *Bus) processQueue() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case ev, ok := <-b.queue:
			if !ok {
				return
			}
			b.Publish(ev)
		}
	}
}

// Close stops the async processor. Idempotent.
func (b *Bus) Close() {
	b.shutdownOnce.Do(func() {
		b.cancel()
	})
}
