package policy

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/loykin/tabguard/internal/status"
	"github.com/loykin/tabguard/internal/tab"
)

// Strategy names as they appear in kill_tab_strategies.
const (
	RSSLimit            = "rss_limit"
	BackgroundTimeLimit = "background_time_limit"
	CPUIdleTimeLimit    = "cpu_idle_time_limit"
)

// Names lists every known strategy in its default order.
var Names = []string{RSSLimit, BackgroundTimeLimit, CPUIdleTimeLimit}

// Candidate is a tab process selected for termination during one pass.
type Candidate struct {
	PID      int32
	Strategy string
	Reason   string
}

// Rules are the protections shared by all strategies.
type Rules struct {
	Whitelist        *Whitelist
	WhitelistAudible bool
}

func (r Rules) audible(t tab.Info) bool { return r.WhitelistAudible && t.Audible }

// Strategy picks tabs to terminate from a view. Implementations must not
// modify the view.
type Strategy interface {
	Name() string
	Select(v status.View, r Rules) []Candidate
}

// Limits holds the thresholds of every strategy.
type Limits struct {
	MaxRSSBytes       uint64
	MaxBackgroundSecs float64
	MaxCPUIdleSecs    float64
}

// Build returns the named strategies in order.
func Build(names []string, l Limits) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		switch n {
		case RSSLimit:
			out = append(out, RSSLimitStrategy{MaxBytes: l.MaxRSSBytes})
		case BackgroundTimeLimit:
			out = append(out, BackgroundTimeLimitStrategy{MaxSecs: l.MaxBackgroundSecs})
		case CPUIdleTimeLimit:
			out = append(out, CPUIdleTimeLimitStrategy{MaxSecs: l.MaxCPUIdleSecs})
		default:
			return nil, fmt.Errorf("unknown strategy %q", n)
		}
	}
	return out, nil
}

// RSSLimitStrategy keeps the total resident memory of all tabs under MaxBytes.
// Inactive tabs are considered largest first; a tab is taken while the
// memory freed so far does not exceed the excess.
type RSSLimitStrategy struct {
	MaxBytes uint64
}

func (RSSLimitStrategy) Name() string { return RSSLimit }

func (s RSSLimitStrategy) Select(v status.View, r Rules) []Candidate {
	total := v.TotalRSS()
	if total <= s.MaxBytes {
		return nil
	}
	excess := total - s.MaxBytes

	type entry struct {
		pid int32
		rss uint64
	}
	var entries []entry
	for _, pid := range v.PIDs() {
		if v.Tabs[pid].Active {
			continue
		}
		entries = append(entries, entry{pid: pid, rss: v.MemoryRSS(pid)})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].rss < entries[j].rss })

	var (
		out   []Candidate
		freed uint64
	)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		t := v.Tabs[e.pid]
		if pattern, ok := r.Whitelist.Match(t.URL); ok {
			slog.Debug("Tab whitelisted", "pid", e.pid, "url", t.URL, "pattern", pattern)
			continue
		}
		if r.audible(t) {
			continue
		}
		if excess < freed {
			break
		}
		out = append(out, Candidate{
			PID:      e.pid,
			Strategy: RSSLimit,
			Reason:   fmt.Sprintf("total rss %d exceeds %d by %d, tab rss %d", total, s.MaxBytes, excess, e.rss),
		})
		freed += e.rss
	}
	return out
}

// BackgroundTimeLimitStrategy terminates tabs that stayed in the background
// longer than MaxSecs.
type BackgroundTimeLimitStrategy struct {
	MaxSecs float64
}

func (BackgroundTimeLimitStrategy) Name() string { return BackgroundTimeLimit }

func (s BackgroundTimeLimitStrategy) Select(v status.View, r Rules) []Candidate {
	var out []Candidate
	for _, pid := range v.PIDs() {
		t := v.Tabs[pid]
		if t.IsNewTab() || r.audible(t) {
			continue
		}
		secs, ok := v.BackgroundSecs(pid)
		if !ok || secs <= s.MaxSecs {
			continue
		}
		out = append(out, Candidate{
			PID:      pid,
			Strategy: BackgroundTimeLimit,
			Reason:   fmt.Sprintf("in background for %.0fs, limit %.0fs", secs, s.MaxSecs),
		})
	}
	return out
}

// CPUIdleTimeLimitStrategy terminates inactive tabs whose process used no cpu
// for longer than MaxSecs.
type CPUIdleTimeLimitStrategy struct {
	MaxSecs float64
}

func (CPUIdleTimeLimitStrategy) Name() string { return CPUIdleTimeLimit }

func (s CPUIdleTimeLimitStrategy) Select(v status.View, r Rules) []Candidate {
	var out []Candidate
	for _, pid := range v.PIDs() {
		t := v.Tabs[pid]
		if t.Active || r.audible(t) {
			continue
		}
		secs, ok := v.CPUIdleSecs(pid)
		if !ok || secs <= s.MaxSecs {
			continue
		}
		out = append(out, Candidate{
			PID:      pid,
			Strategy: CPUIdleTimeLimit,
			Reason:   fmt.Sprintf("cpu idle for %.0fs, limit %.0fs", secs, s.MaxSecs),
		})
	}
	return out
}
