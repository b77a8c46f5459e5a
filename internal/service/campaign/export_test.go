package campaign

import (
	"context"
	"time"
)

// SetSleep replaces the pause used between scheduled runs.
func SetSleep(s *Service, fn func(ctx context.Context, d time.Duration) error) {
	s.sleep = fn
}
