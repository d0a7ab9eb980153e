package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loykin/tabguard/internal/detector"
	"github.com/loykin/tabguard/internal/metrics"
	"github.com/loykin/tabguard/internal/process"
	"github.com/loykin/tabguard/internal/status"
	"github.com/loykin/tabguard/internal/tab"
)

const (
	writeWait    = 5 * time.Second
	maxFrameSize = 32 << 20 // favicons may be inlined as data URLs
)

// ErrBinaryFrame is a protocol violation: the extension only sends text frames.
var ErrBinaryFrame = errors.New("binary frame from extension")

// Result is the outcome of one inbound snapshot.
type Result struct {
	Err       error
	Timestamp float64
	Tabs      int
}

func (r Result) OK() bool { return r.Err == nil }

// Channel brokers refresh requests between the policy loop and the extension.
type Channel struct {
	store   *status.Store
	sampler process.Sampler
	cache   *detector.Cache

	requests chan struct{}
	results  chan Result

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
}

type conn struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

func (c *conn) write(messageType int, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

// Option configures a Channel.
type Option func(*Channel)

// WithAllowedOrigins restricts which Origin headers may connect. Entries are
// prefixes such as "chrome-extension://". Without it every origin is accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(c *Channel) {
		if len(origins) == 0 {
			return
		}
		allowed := append([]string(nil), origins...)
		c.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if strings.HasPrefix(origin, o) {
					return true
				}
			}
			return false
		}
	}
}

func New(store *status.Store, sampler process.Sampler, ident detector.Identifier, opts ...Option) *Channel {
	c := &Channel{
		store:    store,
		sampler:  sampler,
		cache:    detector.NewCache(ident),
		requests: make(chan struct{}, 1),
		results:  make(chan Result, 1),
		upgrader: websocket.Upgrader{
			// The endpoint listens on loopback; extensions connect from chrome-extension:// origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Request asks for a refresh without blocking. It returns false when a request
// is already pending.
func (c *Channel) Request() bool {
	select {
	case c.requests <- struct{}{}:
		return true
	default:
		return false
	}
}

// Results delivers the outcome of inbound snapshots.
func (c *Channel) Results() <-chan Result { return c.results }

// Connections returns the number of connected extension endpoints.
func (c *Channel) Connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Close disconnects every extension. Later connections are still accepted.
func (c *Channel) Close() {
	c.mu.Lock()
	conns := make([]*conn, 0, len(c.conns))
	for cn := range c.conns {
		conns = append(conns, cn)
	}
	c.mu.Unlock()
	for _, cn := range conns {
		c.drop(cn)
	}
}

// Run forwards refresh requests to the extension until ctx is done.
func (c *Channel) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.requests:
			n := c.broadcast()
			slog.Debug("Requested tab data from extension", "connections", n)
		}
	}
}

// broadcast sends an empty wake frame to every connection and returns how many got it.
func (c *Channel) broadcast() int {
	c.mu.Lock()
	conns := make([]*conn, 0, len(c.conns))
	for cn := range c.conns {
		conns = append(conns, cn)
	}
	c.mu.Unlock()

	sent := 0
	for _, cn := range conns {
		if err := cn.write(websocket.BinaryMessage, nil); err != nil {
			slog.Warn("Failed to wake extension", "remote", cn.ws.RemoteAddr().String(), "error", err)
			c.drop(cn)
			continue
		}
		sent++
	}
	return sent
}

func (c *Channel) drop(cn *conn) {
	c.mu.Lock()
	_, ok := c.conns[cn]
	delete(c.conns, cn)
	c.mu.Unlock()
	if ok {
		_ = cn.ws.Close()
	}
}

// ServeHTTP upgrades the request and receives snapshots until the connection closes.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(maxFrameSize)
	cn := &conn{ws: ws}
	c.mu.Lock()
	c.conns[cn] = struct{}{}
	c.mu.Unlock()
	slog.Info("Extension connected", "remote", ws.RemoteAddr().String())
	defer func() {
		c.drop(cn)
		slog.Info("Extension disconnected", "remote", ws.RemoteAddr().String())
	}()

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read error", "error", err)
			}
			return
		}
		c.HandleFrame(r.Context(), mt, data)
	}
}

// HandleFrame processes one inbound frame. Text frames carry tab data; anything
// else is logged and ignored. The store is only touched on success.
func (c *Channel) HandleFrame(ctx context.Context, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		slog.Error("Ignoring frame from extension", "error", ErrBinaryFrame, "bytes", len(data))
		return
	}

	res := c.apply(ctx, data)
	if res.OK() {
		metrics.IncRefresh(metrics.RefreshOK)
		slog.Debug("Status updated", "tabs", res.Tabs, "timestamp", res.Timestamp)
	} else {
		metrics.IncRefresh(metrics.RefreshError)
	}
	c.pushResult(res)
}

func (c *Channel) apply(ctx context.Context, data []byte) Result {
	td, err := tab.Parse(data)
	if err != nil {
		slog.Error("Failed to parse tab data", "error", err, "payload", string(data))
		return Result{Err: err}
	}

	browser := c.store.Browser()
	table, err := c.sampler.Sample(ctx, browser)
	if err != nil {
		slog.Error("Failed to sample processes", "browser", browser, "error", err)
		return Result{Err: fmt.Errorf("sample processes: %w", err)}
	}

	ids := make([]int64, 0, len(td.TabInfos))
	for _, t := range td.TabInfos {
		ids = append(ids, t.BrowserInnerPID)
	}
	pids, reused := c.cache.Resolve(table, browser, ids)

	tabs := make(map[int32]tab.Info, len(td.TabInfos))
	for _, t := range td.TabInfos {
		pid, ok := pids[t.BrowserInnerPID]
		if !ok || !table.Alive(pid) {
			continue
		}
		tabs[pid] = t
	}
	c.store.Replace(tabs, td.Timestamp, table)

	v := c.store.View()
	metrics.SetTabs(v.Len(), v.TotalRSS())
	slog.Debug("Resolved tabs", "reported", len(td.TabInfos), "tracked", v.Len(), "reused_mapping", reused)
	return Result{Timestamp: v.Timestamp, Tabs: v.Len()}
}

// pushResult stores res in the result slot, replacing an unread older result.
func (c *Channel) pushResult(res Result) {
	for {
		select {
		case c.results <- res:
			return
		default:
		}
		select {
		case <-c.results:
		default:
		}
	}
}
