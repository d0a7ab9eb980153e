package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/tabguard/internal/process"
	"github.com/loykin/tabguard/internal/status"
	"github.com/loykin/tabguard/internal/tab"
)

type tabSpec struct {
	pid     int32
	rss     uint64
	active  bool
	audible bool
	title   string
	url     string
	bgSince float64
	idle    float64
}

func view(ts float64, specs ...tabSpec) status.View {
	v := status.View{
		Timestamp:       ts,
		Tabs:            map[int32]tab.Info{},
		BackgroundSince: map[int32]float64{},
		CPUIdleSince:    map[int32]float64{},
	}
	var infos []process.Info
	for _, s := range specs {
		title := s.title
		if title == "" {
			title = "tab"
		}
		v.Tabs[s.pid] = tab.Info{Active: s.active, Audible: s.audible, Title: title, URL: s.url}
		if title != tab.NewTabTitle {
			v.BackgroundSince[s.pid] = s.bgSince
		}
		v.CPUIdleSince[s.pid] = s.idle
		infos = append(infos, process.Info{PID: s.pid, Name: "chromium", MemoryRSS: s.rss})
	}
	v.Procs = process.NewTable(time.Now(), infos...)
	return v
}

func pids(cs []Candidate) []int32 {
	out := make([]int32, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.PID)
	}
	return out
}

func TestRSSLimitSelection(t *testing.T) {
	tabs := []tabSpec{
		{pid: 1, rss: 100, active: true},
		{pid: 2, rss: 100},
		{pid: 3, rss: 300},
		{pid: 4, rss: 500},
	}
	tests := []struct {
		name string
		max  uint64
		want []int32
	}{
		{"under limit", 2000, nil},
		{"exactly at limit", 1000, nil},
		{"excess 400 takes largest only", 600, []int32{4}},
		{"excess 600 takes two", 400, []int32{4, 3}},
		{"excess 900 takes all inactive", 100, []int32{4, 3, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RSSLimitStrategy{MaxBytes: tt.max}.Select(view(0, tabs...), Rules{})
			assert.Equal(t, tt.want, nilIfEmpty(pids(got)))
		})
	}
}

func nilIfEmpty(p []int32) []int32 {
	if len(p) == 0 {
		return nil
	}
	return p
}

func TestRSSLimitNeverSelectsActive(t *testing.T) {
	v := view(0, tabSpec{pid: 1, rss: 5000, active: true}, tabSpec{pid: 2, rss: 10})
	got := RSSLimitStrategy{MaxBytes: 100}.Select(v, Rules{})
	assert.Equal(t, []int32{2}, pids(got))
}

func TestRSSLimitWhitelist(t *testing.T) {
	wl, err := NewWhitelist([]string{`^https://mail\.example\.com/`})
	require.NoError(t, err)
	v := view(0,
		tabSpec{pid: 1, rss: 100},
		tabSpec{pid: 2, rss: 300},
		tabSpec{pid: 3, rss: 500, url: "https://mail.example.com/inbox"},
	)
	got := RSSLimitStrategy{MaxBytes: 600}.Select(v, Rules{Whitelist: wl})
	assert.Equal(t, []int32{2, 1}, pids(got), "whitelisted tab is skipped and walk continues")
}

func TestRSSLimitAudible(t *testing.T) {
	v := view(0, tabSpec{pid: 1, rss: 100}, tabSpec{pid: 2, rss: 500, audible: true})
	got := RSSLimitStrategy{MaxBytes: 300}.Select(v, Rules{WhitelistAudible: true})
	assert.Equal(t, []int32{1}, pids(got))

	got = RSSLimitStrategy{MaxBytes: 300}.Select(v, Rules{})
	assert.Equal(t, []int32{2}, pids(got))
}

func TestBackgroundTimeLimit(t *testing.T) {
	v := view(10_000,
		tabSpec{pid: 1, bgSince: 0},                    // 10s
		tabSpec{pid: 2, bgSince: 6_000},                // 4s
		tabSpec{pid: 3, bgSince: 5_000},                // exactly 5s
		tabSpec{pid: 4, title: tab.NewTabTitle},        // never tracked
		tabSpec{pid: 5, bgSince: 0, audible: true},     // protected
		tabSpec{pid: 6, bgSince: 10_000, active: true}, // 0s
	)
	got := BackgroundTimeLimitStrategy{MaxSecs: 5}.Select(v, Rules{WhitelistAudible: true})
	assert.Equal(t, []int32{1}, pids(got))
	assert.Equal(t, BackgroundTimeLimit, got[0].Strategy)
}

func TestCPUIdleTimeLimit(t *testing.T) {
	v := view(60_000,
		tabSpec{pid: 1, idle: 0},
		tabSpec{pid: 2, idle: 0, active: true},
		tabSpec{pid: 3, idle: 0, audible: true},
		tabSpec{pid: 4, idle: 50_000},
	)
	got := CPUIdleTimeLimitStrategy{MaxSecs: 30}.Select(v, Rules{WhitelistAudible: true})
	assert.Equal(t, []int32{1}, pids(got))

	got = CPUIdleTimeLimitStrategy{MaxSecs: 30}.Select(v, Rules{})
	assert.Equal(t, []int32{1, 3}, pids(got))
}

func TestBuild(t *testing.T) {
	ss, err := Build([]string{CPUIdleTimeLimit, RSSLimit}, Limits{MaxRSSBytes: 10, MaxCPUIdleSecs: 3})
	require.NoError(t, err)
	require.Len(t, ss, 2)
	assert.Equal(t, CPUIdleTimeLimit, ss[0].Name())
	assert.Equal(t, RSSLimitStrategy{MaxBytes: 10}, ss[1])

	_, err = Build([]string{"memory"}, Limits{})
	assert.Error(t, err)
}

func TestWhitelistPatterns(t *testing.T) {
	wl, err := NewWhitelist([]string{`^https://docs\.`, "glob:*://localhost*"})
	require.NoError(t, err)
	assert.Equal(t, 2, wl.Len())

	p, ok := wl.Match("http://localhost:8080/app")
	assert.True(t, ok)
	assert.Equal(t, "glob:*://localhost*", p)

	_, ok = wl.Match("https://docs.example.com")
	assert.True(t, ok)
	_, ok = wl.Match("https://example.com/docs.")
	assert.False(t, ok)

	var none *Whitelist
	_, ok = none.Match("anything")
	assert.False(t, ok)
	assert.Equal(t, 0, none.Len())

	_, err = NewWhitelist([]string{"("})
	assert.Error(t, err)
	_, err = NewWhitelist([]string{"glob:[a-"})
	assert.Error(t, err)
}
