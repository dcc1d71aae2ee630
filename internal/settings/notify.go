package settings

import "sync"

// Change describes one settings write: the entity kind that changed, the
// tenant it belongs to (nil for global) and the category/subcategory key.
type Change struct {
	Kind     string
	DomainID *string
	Key      string
}

// Notifier fans settings-change signals out to subscribers. Writers call
// Notify after a successful store write; the reload coordinator subscribes.
type Notifier struct {
	mu   sync.Mutex
	subs []chan Change
}

// NewNotifier creates a Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe returns a channel receiving future changes. The channel is
// buffered; a slow subscriber drops signals rather than blocking writers.
func (n *Notifier) Subscribe() <-chan Change {
	ch := make(chan Change, 64)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()
	return ch
}

// Notify broadcasts a change to every subscriber.
func (n *Notifier) Notify(c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
