// Package limiter paces outbound requests against a remote site. A book is
// downloaded one chapter fetch at a time, so the pacing here is what stands
// between us and tripping a source's anti-crawl threshold.
package limiter

import (
	"context"
	"sort"
	"time"

	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Wait(context.Context) error
	Limit() rate.Limit
}

func Per(eventCount int, duration time.Duration) rate.Limit {
	return rate.Every(duration / time.Duration(eventCount))
}

// Multi combines limiters into one that satisfies all of them. Sorted by
// ascending rate so Limit() reports the tightest bound.
func Multi(limiters ...RateLimiter) *MultiLimiter {
	byLimit := func(i, j int) bool {
		return limiters[i].Limit() < limiters[j].Limit()
	}
	sort.Slice(limiters, byLimit)

	return &MultiLimiter{limiters: limiters}
}

type MultiLimiter struct {
	limiters []RateLimiter
}

func (l *MultiLimiter) Wait(ctx context.Context) error {
	for _, l := range l.limiters {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (l *MultiLimiter) Limit() rate.Limit {
	return l.limiters[0].Limit()
}

// Download is the stock pacing for chapter downloads: short bursts capped at
// two per second, sustained rate capped at sixty per minute.
func Download() *MultiLimiter {
	secondLimit := rate.NewLimiter(Per(2, 1*time.Second), 1)
	minuteLimit := rate.NewLimiter(Per(60, 1*time.Minute), 20)
	return Multi(secondLimit, minuteLimit)
}
