package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/tabguard/internal/process"
	"github.com/loykin/tabguard/internal/status"
	"github.com/loykin/tabguard/internal/tab"
)

type fixedViewer struct{ v status.View }

func (f fixedViewer) View() status.View { return f.v }

func sampleView() status.View {
	return status.View{
		Timestamp: 20_000,
		Tabs: map[int32]tab.Info{
			10: {Title: "Docs", URL: "https://docs", Active: true},
			11: {Title: "Video", URL: "https://video", Audible: true},
			12: {Title: tab.NewTabTitle},
			13: {Title: "Gone"},
		},
		BackgroundSince: map[int32]float64{10: 20_000, 11: 5_000, 13: 0},
		CPUIdleSince:    map[int32]float64{10: 20_000, 11: 10_000, 12: 0, 13: 0},
		Procs: process.NewTable(time.Now(),
			process.Info{PID: 10, Name: "chromium", MemoryRSS: 100, CPUPercent: 3.5},
			process.Info{PID: 11, Name: "chromium", MemoryRSS: 200},
			process.Info{PID: 12, Name: "chromium", MemoryRSS: 50},
		),
	}
}

func setupRouter(t *testing.T, base string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(fixedViewer{sampleView()}, base).Handler()
}

func doReq(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBuildReport(t *testing.T) {
	r := BuildReport(sampleView())
	assert.Equal(t, float64(20_000), r.Timestamp)
	require.Len(t, r.TabInfos, 2, "New Tab and pids missing from the process table are left out")

	docs := r.TabInfos[0]
	assert.Equal(t, int32(10), docs.PID)
	assert.True(t, docs.Foreground)
	assert.Equal(t, float64(0), docs.BackgroundTimeSecs)
	assert.Equal(t, 3.5, docs.CPUUsage)

	video := r.TabInfos[1]
	assert.Equal(t, uint64(200), video.RSS)
	assert.Equal(t, float64(15), video.BackgroundTimeSecs)
	assert.Equal(t, float64(10), video.CPUIdleTimeSecs)
	assert.True(t, video.Audible)
}

func TestBuildReportEmpty(t *testing.T) {
	b, err := json.Marshal(BuildReport(status.View{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":0,"tab_infos":[]}`, string(b))
}

func TestTabsEndpoint(t *testing.T) {
	h := setupRouter(t, "/api/")
	rec := doReq(t, h, "/api/tabs")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var r Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Len(t, r.TabInfos, 2)
}

func TestTabEndpoint(t *testing.T) {
	h := setupRouter(t, "")
	tests := []struct {
		path string
		code int
	}{
		{"/tabs/11", http.StatusOK},
		{"/tabs/12", http.StatusNotFound},
		{"/tabs/13", http.StatusNotFound},
		{"/tabs/999", http.StatusNotFound},
		{"/tabs/abc", http.StatusBadRequest},
		{"/tabs/-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := doReq(t, h, tt.path)
		assert.Equal(t, tt.code, rec.Code, tt.path)
	}

	var e TabEntry
	require.NoError(t, json.Unmarshal(doReq(t, h, "/tabs/11").Body.Bytes(), &e))
	assert.Equal(t, "Video", e.Title)
}

func TestHealthz(t *testing.T) {
	rec := doReq(t, setupRouter(t, ""), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"tabs":4,"timestamp":20000}`, rec.Body.String())
}

func TestFetchReport(t *testing.T) {
	srv := httptest.NewServer(setupRouter(t, ""))
	defer srv.Close()

	r, err := FetchReport(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Len(t, r.TabInfos, 2)

	_, err = FetchReport(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{"": "", "/": "", "api": "/api", "/api/": "/api", " /x ": "/x"}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeBase(in), in)
	}
}
