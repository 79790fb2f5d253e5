package redisclient

import (
	"context"
	"sync"
)

// LocalLocker serializes day commits with in-process mutexes. It backs
// tests and single-process tooling where a Redis instance would be
// overkill; the API server always uses the Redis locker.
type LocalLocker struct {
	mu   sync.Mutex
	days map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{days: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) WithDayLock(ctx context.Context, date string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	day, ok := l.days[date]
	if !ok {
		day = &sync.Mutex{}
		l.days[date] = day
	}
	l.mu.Unlock()

	day.Lock()
	defer day.Unlock()

	return fn(ctx)
}
