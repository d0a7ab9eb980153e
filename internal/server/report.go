package server

import (
	"github.com/loykin/tabguard/internal/status"
)

// Report is the JSON projection of the status store served on /tabs.
type Report struct {
	Timestamp float64    `json:"timestamp"`
	TabInfos  []TabEntry `json:"tab_infos"`
}

// TabEntry describes one tracked tab process.
type TabEntry struct {
	Title              string  `json:"title"`
	URL                string  `json:"url"`
	PID                int32   `json:"pid"`
	RSS                uint64  `json:"rss"`
	Foreground         bool    `json:"foreground"`
	Audible            bool    `json:"audible"`
	BackgroundTimeSecs float64 `json:"background_time_secs"`
	CPUUsage           float64 `json:"cpu_usage"`
	CPUIdleTimeSecs    float64 `json:"cpu_idle_time_secs"`
}

// BuildReport lists tabs whose process is in the sampled table and which
// have both timers. New Tab pages have no background timer and are left out.
func BuildReport(v status.View) Report {
	r := Report{Timestamp: v.Timestamp, TabInfos: []TabEntry{}}
	for _, pid := range v.PIDs() {
		if e, ok := entry(v, pid); ok {
			r.TabInfos = append(r.TabInfos, e)
		}
	}
	return r
}

func entry(v status.View, pid int32) (TabEntry, bool) {
	t, ok := v.Tabs[pid]
	if !ok {
		return TabEntry{}, false
	}
	p, ok := v.Procs.Get(pid)
	if !ok {
		return TabEntry{}, false
	}
	bg, ok := v.BackgroundSecs(pid)
	if !ok {
		return TabEntry{}, false
	}
	idle, ok := v.CPUIdleSecs(pid)
	if !ok {
		return TabEntry{}, false
	}
	return TabEntry{
		Title:              t.Title,
		URL:                t.URL,
		PID:                pid,
		RSS:                p.MemoryRSS,
		Foreground:         t.Active,
		Audible:            t.Audible,
		BackgroundTimeSecs: bg,
		CPUUsage:           p.CPUPercent,
		CPUIdleTimeSecs:    idle,
	}, true
}
