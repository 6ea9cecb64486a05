package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per key in process memory. Counts are
// per instance and reset on restart, so only use it for single-instance
// deployments. Close stops the janitor.
type LocalLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	stop     chan struct{}
	once     sync.Once
}

// NewLocalLimiter allows perMinute requests per key with a burst of the
// same size. Keys idle for longer than idleTTL are forgotten.
func NewLocalLimiter(perMinute int, idleTTL time.Duration) *LocalLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	l := &LocalLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		idleTTL:  idleTTL,
		stop:     make(chan struct{}),
	}
	go l.janitor()
	return l
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()

	return v.limiter.Allow(), nil
}

func (l *LocalLimiter) janitor() {
	ticker := time.NewTicker(l.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep(time.Now())
		}
	}
}

func (l *LocalLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idleTTL {
			delete(l.visitors, key)
		}
	}
}

func (l *LocalLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *LocalLimiter) Close() error {
	l.once.Do(func() { close(l.stop) })
	return nil
}
