package status

import (
	"sort"

	"github.com/loykin/tabguard/internal/process"
	"github.com/loykin/tabguard/internal/tab"
)

// View is a detached snapshot of the store. Timestamps are extension milliseconds.
type View struct {
	Timestamp       float64
	Tabs            map[int32]tab.Info
	BackgroundSince map[int32]float64
	CPUIdleSince    map[int32]float64
	Procs           process.Table
}

func (v View) Len() int { return len(v.Tabs) }

// PIDs returns the tracked pids in ascending order.
func (v View) PIDs() []int32 {
	out := make([]int32, 0, len(v.Tabs))
	for pid := range v.Tabs {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BackgroundSecs returns how long pid has been in the background, in seconds.
func (v View) BackgroundSecs(pid int32) (float64, bool) {
	since, ok := v.BackgroundSince[pid]
	if !ok {
		return 0, false
	}
	return (v.Timestamp - since) / 1000, true
}

// CPUIdleSecs returns how long pid has used no cpu, in seconds.
func (v View) CPUIdleSecs(pid int32) (float64, bool) {
	since, ok := v.CPUIdleSince[pid]
	if !ok {
		return 0, false
	}
	return (v.Timestamp - since) / 1000, true
}

// MemoryRSS returns the resident memory of a tracked pid, 0 when it is gone.
func (v View) MemoryRSS(pid int32) uint64 { return v.Procs.MemoryRSS(pid) }

// TotalRSS sums the resident memory of every tracked tab process.
func (v View) TotalRSS() uint64 {
	var total uint64
	for pid := range v.Tabs {
		total += v.Procs.MemoryRSS(pid)
	}
	return total
}
