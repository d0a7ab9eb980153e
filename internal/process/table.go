package process

import (
	"sort"
	"time"
)

// Info is one row of a sampled process table.
type Info struct {
	PID        int32    `json:"pid"`
	Name       string   `json:"name"`
	Cmdline    []string `json:"cmdline,omitempty"`
	MemoryRSS  uint64   `json:"memory_rss"`
	CPUPercent float64  `json:"cpu_percent"`
}

// Table is an immutable point-in-time view of the process table.
// The zero value is an empty table.
type Table struct {
	SampledAt time.Time
	procs     map[int32]Info
}

// NewTable builds a table from the given rows. Later rows win on duplicate pids.
func NewTable(at time.Time, infos ...Info) Table {
	m := make(map[int32]Info, len(infos))
	for _, in := range infos {
		m[in.PID] = in
	}
	return Table{SampledAt: at, procs: m}
}

func (t Table) Len() int { return len(t.procs) }

// Get returns the row for pid.
func (t Table) Get(pid int32) (Info, bool) {
	in, ok := t.procs[pid]
	return in, ok
}

// Alive reports whether pid was present when the table was sampled.
func (t Table) Alive(pid int32) bool {
	_, ok := t.procs[pid]
	return ok
}

// MemoryRSS returns the resident memory of pid, 0 when absent.
func (t Table) MemoryRSS(pid int32) uint64 { return t.procs[pid].MemoryRSS }

// CPUPercent returns the cpu usage of pid, 0 when absent.
func (t Table) CPUPercent(pid int32) float64 { return t.procs[pid].CPUPercent }

// ByName returns the rows whose image name equals name, ordered by pid.
func (t Table) ByName(name string) []Info {
	out := make([]Info, 0)
	for _, in := range t.procs {
		if in.Name == name {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// CountByName returns how many rows have the given image name.
func (t Table) CountByName(name string) int {
	n := 0
	for _, in := range t.procs {
		if in.Name == name {
			n++
		}
	}
	return n
}
