package worker

import (
	"hash/fnv"
	"sort"
	"sync"
)

const defaultStripes = 256

// StripedLock serializes work per key over a fixed set of mutexes. Keys
// that hash to the same stripe share it.
type StripedLock struct {
	stripes []sync.Mutex
}

// NewStripedLock returns a lock with n stripes (256 when n < 1).
func NewStripedLock(n int) *StripedLock {
	if n < 1 {
		n = defaultStripes
	}
	return &StripedLock{stripes: make([]sync.Mutex, n)}
}

func (l *StripedLock) stripe(key string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(len(l.stripes)))
}

// Lock acquires the stripes of every key in ascending stripe order, so two
// callers with overlapping keys cannot deadlock. The returned func unlocks.
func (l *StripedLock) Lock(keys ...string) (unlock func()) {
	seen := make(map[int]struct{}, len(keys))
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		i := l.stripe(k)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		l.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.stripes[idx[j]].Unlock()
		}
	}
}
