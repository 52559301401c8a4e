package services

import (
	"context"
	"time"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func utcClock(clock func() time.Time) func() time.Time {
	return func() time.Time {
		return clock().UTC()
	}
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
