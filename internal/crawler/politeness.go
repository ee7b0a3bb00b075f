package crawler

import (
	"context"
	"fmt"
	"time"
)

// DefaultPolitenessDelay is the fixed pause between crawl iterations.
const DefaultPolitenessDelay = 500 * time.Millisecond

// TimerPauser sleeps on a timer and wakes early when ctx ends.
type TimerPauser struct{}

// Pause blocks for d or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
