package workspace

import "sync"

// pathLocks serializes operations that target the same resolved path.
// Locks are reference-counted and dropped from the map once the last
// holder releases, so the map does not grow with workspace size.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

func (p *pathLocks) lock(key string) {
	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pathLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
}

func (p *pathLocks) unlock(key string) {
	p.mu.Lock()
	l := p.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(p.locks, key)
	}
	p.mu.Unlock()

	l.mu.Unlock()
}
