package lock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// KeyedLocker serializes work per lot inside one process. Each lot gets a
// one-slot channel so waiters can give up when their context ends.
type KeyedLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{slots: make(map[uuid.UUID]*slot)}
}

// Lock implements outbound.LotLocker
func (l *KeyedLocker) Lock(ctx context.Context, lotID uuid.UUID) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[lotID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[lotID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(lotID, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(lotID, s)
		})
	}, nil
}

func (l *KeyedLocker) release(lotID uuid.UUID, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, lotID)
	}
}

// Held returns the number of lots with an owner or waiters
func (l *KeyedLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
