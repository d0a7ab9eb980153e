package tabguard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/tabguard/internal/process"
	iapi "github.com/loykin/tabguard/internal/server"
)

type staticSampler struct{ table ProcessTable }

func (s staticSampler) Sample(context.Context, string) (ProcessTable, error) { return s.table, nil }

type recordingTerminator struct {
	mu   sync.Mutex
	pids []int32
}

func (r *recordingTerminator) Terminate(pid int32) (process.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pids = append(r.pids, pid)
	return process.Delivered, nil
}

func (r *recordingTerminator) killed(pid int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pids {
		if p == pid {
			return true
		}
	}
	return false
}

func renderer(pid int32, id string) ProcessInfo {
	return ProcessInfo{
		PID:       pid,
		Name:      "chromium",
		Cmdline:   []string{"chromium --type=renderer --renderer-client-id=" + id},
		MemoryRSS: 64 << 20,
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	c, err := DefaultConfig()
	require.NoError(t, err)
	c.CheckIntervalSecs = 0.05
	c.KillTabStrategies = []string{"background_time_limit"}
	c.Strategy.BackgroundTimeLimit.MaxSecs = 10
	c.Server.Listen = "127.0.0.1:0"
	c.Report.Listen = "127.0.0.1:0"
	c.Log.Color = false
	return c
}

const snapshot = `{"timestamp": 100000, "tabInfos": [
	{"id": 1, "title": "Editor", "url": "https://editor", "active": true, "browserInnerPid": 7},
	{"id": 2, "title": "Old news", "url": "https://news", "lastAccessed": 0, "browserInnerPid": 8}
]}`

func TestDaemonEndToEnd(t *testing.T) {
	term := &recordingTerminator{}
	d, err := New(testConfig(t),
		WithSampler(staticSampler{table: process.NewTable(time.Now(), renderer(100, "7"), renderer(200, "8"))}),
		WithTerminator(term),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Start(ctx))
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		assert.NoError(t, d.Shutdown(sctx))
	}()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+d.Addr("extension").String()+"/", nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	// Fake extension: answer every wake frame with the same snapshot.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, []byte(snapshot)); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return term.killed(200) }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, term.killed(100), "active tab is never in the background")

	r, err := iapi.FetchReport(ctx, "http://"+d.Addr("report").String())
	require.NoError(t, err)
	assert.Equal(t, float64(100000), r.Timestamp)
	require.Len(t, r.TabInfos, 2)
	assert.Equal(t, int32(100), d.Report().TabInfos[0].PID)
	assert.Equal(t, 1, d.Connections())
	assert.Nil(t, d.Addr("metrics"))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.KillTabStrategies = []string{"bogus"}
	_, err := New(c)
	assert.Error(t, err)
}

func TestStartFailsOnBusyPort(t *testing.T) {
	c := testConfig(t)
	first, err := New(c, WithSampler(staticSampler{}))
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Shutdown(context.Background()) }()

	c.Server.Listen = first.Addr("extension").String()
	second, err := New(c, WithSampler(staticSampler{}))
	require.NoError(t, err)
	assert.Error(t, second.Start(context.Background()))
}
