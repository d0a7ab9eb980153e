package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/tabguard/internal/status"
)

// Viewer exposes the latest status snapshot.
type Viewer interface {
	View() status.View
}

// Router provides embeddable read-only HTTP handlers over the status store.
// Endpoints:
//
//	GET {basePath}/tabs        every tracked tab
//	GET {basePath}/tabs/:pid   one tab, 404 when not tracked
//	GET {basePath}/healthz     liveness and snapshot age
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	store    Viewer
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(store Viewer, basePath string) *Router {
	return &Router{store: store, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/tabs", r.handleTabs)
	group.GET("/tabs/:pid", r.handleTab)
	group.GET("/healthz", r.handleHealth)
	return g
}

// NewServer returns an HTTP server for the report endpoint. The caller starts it.
func NewServer(addr, basePath string, store Viewer) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(store, basePath).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type errorResp struct {
	Error string `json:"error"`
}

type healthResp struct {
	OK        bool    `json:"ok"`
	Tabs      int     `json:"tabs"`
	Timestamp float64 `json:"timestamp"`
}

func (r *Router) handleTabs(c *gin.Context) {
	writeJSON(c, http.StatusOK, BuildReport(r.store.View()))
}

func (r *Router) handleTab(c *gin.Context) {
	pid, err := strconv.ParseInt(c.Param("pid"), 10, 32)
	if err != nil || pid <= 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid pid"})
		return
	}
	e, ok := entry(r.store.View(), int32(pid))
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "tab not tracked"})
		return
	}
	writeJSON(c, http.StatusOK, e)
}

func (r *Router) handleHealth(c *gin.Context) {
	v := r.store.View()
	writeJSON(c, http.StatusOK, healthResp{OK: true, Tabs: v.Len(), Timestamp: v.Timestamp})
}
