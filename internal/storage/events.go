package storage

import (
	"context"
	"sync"
	"time"
)

// EventOp names a store mutation.
type EventOp string

const (
	EventSet          EventOp = "set"
	EventUnset        EventOp = "unset"
	EventCommit       EventOp = "commit"
	EventInsertSocket EventOp = "insert_socket"
	EventRemoveSocket EventOp = "remove_socket"
)

// Event describes one successful store mutation.
type Event struct {
	Op    EventOp   `json:"op"`
	Name  string    `json:"name,omitempty"`
	Value string    `json:"value,omitempty"`
	Time  time.Time `json:"time"`
}

// Broker fans events out to subscribers. Slow subscribers lose events
// rather than block the publisher.
type Broker struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a subscriber with the given channel buffer. The
// returned function unsubscribes and closes the channel.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Broker) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Observed wraps a Store and publishes an Event for every successful
// mutation.
type Observed struct {
	Store
	broker *Broker
	now    func() time.Time
}

// NewObserved wraps store so that mutations are published to broker.
func NewObserved(store Store, broker *Broker) *Observed {
	return &Observed{Store: store, broker: broker, now: time.Now}
}

func (o *Observed) publish(op EventOp, name, value string) {
	o.broker.Publish(Event{Op: op, Name: name, Value: value, Time: o.now()})
}

func (o *Observed) Set(ctx context.Context, name, value string) error {
	if err := o.Store.Set(ctx, name, value); err != nil {
		return err
	}
	o.publish(EventSet, name, value)
	return nil
}

func (o *Observed) Unset(ctx context.Context, name string) error {
	if err := o.Store.Unset(ctx, name); err != nil {
		return err
	}
	o.publish(EventUnset, name, "")
	return nil
}

func (o *Observed) Commit(ctx context.Context) error {
	if err := o.Store.Commit(ctx); err != nil {
		return err
	}
	o.publish(EventCommit, "", "")
	return nil
}

func (o *Observed) InsertSocket(ctx context.Context, entries []Entry) error {
	if err := o.Store.InsertSocket(ctx, entries); err != nil {
		return err
	}
	sock, _ := ParseSocket(entries)
	o.publish(EventInsertSocket, sock.Address, sock.Protocol)
	return nil
}

func (o *Observed) RemoveSocket(ctx context.Context, entries []Entry) error {
	if err := o.Store.RemoveSocket(ctx, entries); err != nil {
		return err
	}
	sock, _ := ParseSocket(entries)
	o.publish(EventRemoveSocket, sock.Address, sock.Protocol)
	return nil
}
