package memory

import (
	"context"
	"sync"
)

// Notifier fans out session change signals to subscribers in this process.
type Notifier struct {
	mu          sync.Mutex
	subscribers map[string]map[chan struct{}]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subscribers: make(map[string]map[chan struct{}]struct{})}
}

// Publish signals every subscriber of the session. Signals carry no payload,
// so a subscriber that has not consumed the previous one loses nothing.
func (n *Notifier) Publish(_ context.Context, sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subscribers[sessionID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers a subscriber. The channel holds one pending signal at
// first so the caller sends its initial state without a special case.
func (n *Notifier) Subscribe(_ context.Context, sessionID string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}

	n.mu.Lock()
	subs, ok := n.subscribers[sessionID]
	if !ok {
		subs = make(map[chan struct{}]struct{})
		n.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subscribers[sessionID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(n.subscribers, sessionID)
		}
	}
	return ch, cancel, nil
}
