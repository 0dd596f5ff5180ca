package app

import (
	"context"
	"errors"
	"time"
)

// ErrStop ends a Poll loop without reporting an error.
var ErrStop = errors.New("stop polling")

// Poll calls fn immediately and then every interval until ctx is done or fn
// returns ErrStop. Any other error is handed to onErr and the loop keeps
// going; one failed poll must never stop a client.
func Poll(ctx context.Context, interval time.Duration, fn func(context.Context) error, onErr func(error)) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(ctx); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if onErr != nil {
				onErr(err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
