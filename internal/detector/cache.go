package detector

import (
	"sync"

	"github.com/loykin/tabguard/internal/process"
)

// Cache remembers the last resolution and reuses it while the set of requested
// renderer ids stays the same and every remembered pid is still alive.
// Any change to the set forces a full rescan.
type Cache struct {
	inner Identifier

	mu      sync.Mutex
	mapping map[int64]int32
}

func NewCache(inner Identifier) *Cache {
	if inner == nil {
		inner = RendererDetector{}
	}
	return &Cache{inner: inner}
}

// Resolve returns renderer id -> pid for the requested ids. The bool reports
// whether the previous mapping was reused.
func (c *Cache) Resolve(table process.Table, browser string, ids []int64) (map[int64]int32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mapping != nil && sameIDs(c.mapping, ids) && allAlive(table, c.mapping) {
		return copyMapping(c.mapping), true
	}

	all := c.inner.Resolve(table, browser)
	resolved := make(map[int64]int32, len(ids))
	for _, id := range ids {
		if pid, ok := all[id]; ok {
			resolved[id] = pid
		}
	}
	c.mapping = resolved
	return copyMapping(resolved), false
}

// Invalidate drops the remembered mapping.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.mapping = nil
	c.mu.Unlock()
}

func (c *Cache) Describe() string { return "cached " + c.inner.Describe() }

// sameIDs reports whether ids, as a set, equals the keys of m.
func sameIDs(m map[int64]int32, ids []int64) bool {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := m[id]; !ok {
			return false
		}
		set[id] = struct{}{}
	}
	return len(set) == len(m)
}

func allAlive(table process.Table, m map[int64]int32) bool {
	for _, pid := range m {
		if !table.Alive(pid) {
			return false
		}
	}
	return true
}

func copyMapping(m map[int64]int32) map[int64]int32 {
	out := make(map[int64]int32, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
