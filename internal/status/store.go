// Package status owns the latest tab snapshot and the timers derived from it.
package status

import (
	"sync"

	"github.com/loykin/tabguard/internal/process"
	"github.com/loykin/tabguard/internal/tab"
)

// Store is the single owner of the tab snapshot. Replace is the only mutator;
// readers get a detached View. Both hold the lock only for the copy.
type Store struct {
	browser string

	mu              sync.RWMutex
	tabs            map[int32]tab.Info
	timestamp       float64
	procs           process.Table
	backgroundSince map[int32]float64
	cpuIdleSince    map[int32]float64
}

// NewStore returns an empty store for the given browser executable name.
func NewStore(browser string) *Store {
	return &Store{
		browser:         browser,
		tabs:            make(map[int32]tab.Info),
		backgroundSince: make(map[int32]float64),
		cpuIdleSince:    make(map[int32]float64),
	}
}

// Replace swaps in a new snapshot taken at timestamp (extension clock, ms) together
// with the process table sampled for it, and recomputes the background and cpu-idle timers.
// The stored timestamp never moves backwards.
func (s *Store) Replace(tabs map[int32]tab.Info, timestamp float64, procs process.Table) {
	next := make(map[int32]tab.Info, len(tabs))
	// Browser closed: forget every cached tab.
	if procs.CountByName(s.browser) > 0 {
		for pid, info := range tabs {
			next[pid] = info
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if timestamp < s.timestamp {
		timestamp = s.timestamp
	}
	s.tabs = next
	s.timestamp = timestamp
	s.procs = procs
	s.backgroundSince = nextBackgroundSince(next, timestamp, s.backgroundSince)
	s.cpuIdleSince = nextCPUIdleSince(next, timestamp, procs, s.cpuIdleSince)
}

// nextBackgroundSince records when each tab was last in the foreground.
// New Tab pages are skipped since their lastAccessed is not meaningful.
func nextBackgroundSince(tabs map[int32]tab.Info, timestamp float64, prev map[int32]float64) map[int32]float64 {
	out := make(map[int32]float64, len(tabs))
	for pid, info := range tabs {
		if info.IsNewTab() {
			continue
		}
		since := info.LastAccessed
		if info.Active {
			since = timestamp
		}
		// A tab cannot become older than it already was.
		if old, ok := prev[pid]; ok && old > since {
			since = old
		}
		out[pid] = since
	}
	return out
}

// nextCPUIdleSince carries an idle streak forward while cpu usage stays at zero.
func nextCPUIdleSince(tabs map[int32]tab.Info, timestamp float64, procs process.Table, prev map[int32]float64) map[int32]float64 {
	out := make(map[int32]float64, len(tabs))
	for pid := range tabs {
		old, tracked := prev[pid]
		if !tracked {
			out[pid] = timestamp
			continue
		}
		info, alive := procs.Get(pid)
		if !alive {
			continue
		}
		if info.CPUPercent == 0 {
			out[pid] = old
		} else {
			out[pid] = timestamp
		}
	}
	return out
}

// View returns a consistent copy of the current state.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		Timestamp:       s.timestamp,
		Tabs:            make(map[int32]tab.Info, len(s.tabs)),
		BackgroundSince: make(map[int32]float64, len(s.backgroundSince)),
		CPUIdleSince:    make(map[int32]float64, len(s.cpuIdleSince)),
		Procs:           s.procs,
	}
	for k, t := range s.tabs {
		v.Tabs[k] = t
	}
	for k, t := range s.backgroundSince {
		v.BackgroundSince[k] = t
	}
	for k, t := range s.cpuIdleSince {
		v.CPUIdleSince[k] = t
	}
	return v
}

// Browser returns the executable name the store was created for.
func (s *Store) Browser() string { return s.browser }
