package kv

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 256

// Locks serializes writers of the same session over a fixed set of striped mutexes.
type Locks struct {
	stripes [lockStripes]sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{}
}

// Lock blocks until the session's stripe is held and returns its release func.
func (l *Locks) Lock(sessionID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
