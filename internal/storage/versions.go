package storage

import (
	"sync"
)

// overlayVersions tracks per-user overlay write counters. The process
// is the single writer, so an in-memory counter is sufficient for
// cache invalidation.
type overlayVersions struct {
	m  map[string]uint64
	mu sync.Mutex
}

func newOverlayVersions() *overlayVersions {
	return &overlayVersions{m: make(map[string]uint64)}
}

func (v *overlayVersions) get(userID string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.m[userID]
}

func (v *overlayVersions) bump(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.m[userID]++
}
