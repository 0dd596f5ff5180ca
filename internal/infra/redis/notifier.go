package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Notifier relays session change signals over Redis pub/sub so push clients
// connected to any instance hear about mutations made on another.
type Notifier struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func NewNotifier(client *redis.Client, log logrus.FieldLogger) *Notifier {
	return &Notifier{client: client, log: log}
}

func channel(sessionID string) string {
	return "quiz:events:" + sessionID
}

// Publish is best effort; polling clients converge regardless.
func (n *Notifier) Publish(ctx context.Context, sessionID string) {
	if err := n.client.Publish(ctx, channel(sessionID), "changed").Err(); err != nil {
		n.log.WithError(err).WithField("session", sessionID).Warn("publish session change failed")
	}
}

// Subscribe waits for the subscription to be confirmed, then relays messages
// as coalesced signals. The first signal is pending immediately.
func (n *Notifier) Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, func(), error) {
	pubsub := n.client.Subscribe(ctx, channel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan struct{}, 1)
	out <- struct{}{}
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}
