// Package notify delivers document mutation events to subscribers,
// synchronously and in publish order.
package notify

import (
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Kind tells structural changes apart from value updates.
type Kind int

const (
	ValueChanged Kind = iota
	NodeAdded
	NodeRemoved
)

func (k Kind) String() string {
	switch k {
	case ValueChanged:
		return "value"
	case NodeAdded:
		return "added"
	case NodeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Structural reports whether the event added or removed nodes.
func (k Kind) Structural() bool {
	return k == NodeAdded || k == NodeRemoved
}

// Event describes one mutation.
type Event struct {
	ID   ulid.ULID
	Kind Kind
	// Nodes holds the tag names of the leaves that changed.
	Nodes []string
	// Path is the generic path of the mutated node, without positions.
	Path string
	// RepeatPath is the innermost repeat series containing the change, and
	// RepeatPosition its 1-based position. Both are zero when the change
	// happened outside any repeat.
	RepeatPath     string
	RepeatPosition int
}

// NewEvent stamps a fresh id on an event.
func NewEvent(kind Kind, path string, nodes ...string) Event {
	return Event{ID: ulid.Make(), Kind: kind, Path: path, Nodes: nodes}
}

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Notifier is a copy-on-write subscriber list. Publishing iterates a
// snapshot, so handlers may subscribe or unsubscribe while being called.
type Notifier struct {
	mu            sync.Mutex
	nextID        uint64
	subscriptions []subscription
}

// New returns a notifier without subscribers.
func New() *Notifier {
	return &Notifier{}
}

// Subscribe registers handler and returns a function that removes it.
func (n *Notifier) Subscribe(handler Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	next := slices.Clone(n.subscriptions)
	n.subscriptions = append(next, subscription{id: id, handler: handler})

	return func() {
		n.unsubscribe(id)
	}
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	i := slices.IndexFunc(n.subscriptions, func(s subscription) bool { return s.id == id })
	if i < 0 {
		return
	}
	next := slices.Clone(n.subscriptions)
	n.subscriptions = slices.Delete(next, i, i+1)
}

func (n *Notifier) snapshot() []subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.subscriptions
}

// Publish calls every current subscriber with event before returning.
func (n *Notifier) Publish(event Event) {
	for _, s := range n.snapshot() {
		s.handler(event)
	}
}

// Len returns the number of subscribers.
func (n *Notifier) Len() int {
	return len(n.snapshot())
}
