package engine

import (
	"slices"
	"sync"
)

// accountLocks is a keyed mutex: one lock per account name, created on
// demand and dropped when nobody holds or waits for it.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*accountLock)}
}

// lock acquires the locks for names in ascending byte order, so two callers
// locking the same pair can never deadlock. Duplicate names are locked once.
// The returned function releases everything.
func (l *accountLocks) lock(names ...string) (unlock func()) {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*accountLock, 0, len(sorted))
	for _, name := range sorted {
		al := l.acquire(name)
		al.Lock()
		held = append(held, al)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			l.release(sorted[i])
		}
	}
}

func (l *accountLocks) acquire(name string) *accountLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	al, ok := l.locks[name]
	if !ok {
		al = &accountLock{}
		l.locks[name] = al
	}
	al.refs++
	return al
}

func (l *accountLocks) release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	al := l.locks[name]
	al.refs--
	if al.refs == 0 {
		delete(l.locks, name)
	}
}

// size reports how many names currently have a lock entry. Used for testing.
func (l *accountLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
