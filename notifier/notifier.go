// Package notifier is a minimal fan-out signal used to wake up event
// stream subscribers whenever the status store changes.
package notifier

import "sync"

type Notifier struct {
	mu          sync.Mutex
	subscribers map[chan struct{}]struct{}
}

func New() Notifier {
	return Notifier{
		subscribers: make(map[chan struct{}]struct{}),
	}
}

func (n *Notifier) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subscribers[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	delete(n.subscribers, ch)
	close(ch)
	n.mu.Unlock()
}

func (n *Notifier) NotifyAll() {
	n.mu.Lock()
	for ch := range n.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// subscriber has a wakeup pending already
		}
	}
	n.mu.Unlock()
}
