package changelog

import (
	"context"
	"sync"
)

// Notifier signals that new changelog entries may be available. Signals
// carry no payload; subscribers re-read the log from their own cursor.
type Notifier interface {
	Notify(ctx context.Context) error
	Subscribe() (<-chan struct{}, func())
}

// LocalNotifier fans signals out to subscribers in this process.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[chan struct{}]struct{})}
}

func (n *LocalNotifier) Notify(context.Context) error {
	n.broadcast()
	return nil
}

func (n *LocalNotifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
			// a signal is already pending for this subscriber
		}
	}
}

func (n *LocalNotifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, ch)
			n.mu.Unlock()
		})
	}
}
