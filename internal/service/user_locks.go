package service

import "sync"

// userLocks serializa el trabajo por usuario; las entradas se liberan cuando nadie las usa.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// Lock bloquea la clave y devuelve la función que la libera.
func (l *userLocks) Lock(key string) func() {
	l.mu.Lock()
	ul, ok := l.locks[key]
	if !ok {
		ul = &userLock{}
		l.locks[key] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
