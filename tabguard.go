// Package tabguard keeps a browser's memory use bounded by terminating tabs.
//
// A browser extension reports its tabs over a local WebSocket; the daemon
// joins them with the operating system's process table, tracks how long each
// tab has been in the background or idle, and sends SIGTERM to renderer
// processes selected by the configured strategies.
package tabguard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/tabguard/internal/acquire"
	cfg "github.com/loykin/tabguard/internal/config"
	"github.com/loykin/tabguard/internal/detector"
	"github.com/loykin/tabguard/internal/history"
	"github.com/loykin/tabguard/internal/history/factory"
	"github.com/loykin/tabguard/internal/metrics"
	"github.com/loykin/tabguard/internal/policy"
	"github.com/loykin/tabguard/internal/process"
	iapi "github.com/loykin/tabguard/internal/server"
	"github.com/loykin/tabguard/internal/status"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type Sampler = process.Sampler

type ProcessTable = process.Table

type ProcessInfo = process.Info

type Terminator = process.Terminator

type HistorySink = history.Sink

type HistoryEvent = history.Event

type Report = iapi.Report

type View = status.View

// LoadConfig loads path (or the default location when empty), creating the
// default file when it is missing. See config.LoadOrCreate.
func LoadConfig(path string) (Config, string, error) { return cfg.LoadOrCreate(path) }

// DefaultConfig returns the built-in configuration.
func DefaultConfig() (Config, error) { return cfg.Default() }

// Option customizes a Daemon.
type Option func(*Daemon)

// WithSampler replaces the gopsutil process sampler.
func WithSampler(s Sampler) Option { return func(d *Daemon) { d.sampler = s } }

// WithTerminator replaces the SIGTERM terminator.
func WithTerminator(t Terminator) Option { return func(d *Daemon) { d.term = t } }

// WithHistorySink sets the kill history sink, overriding [history] in the config.
func WithHistorySink(s HistorySink) Option { return func(d *Daemon) { d.sink = s } }

// Daemon wires the extension endpoint, the status store, the policy engine
// and the optional report and metrics servers.
type Daemon struct {
	cfg     Config
	sampler Sampler
	term    Terminator
	sink    HistorySink

	store  *status.Store
	ch     *acquire.Channel
	engine *policy.Engine

	mu      sync.Mutex
	servers []*http.Server
	addrs   map[string]net.Addr
	closers []io.Closer
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	errc    chan error
}

// New validates c and builds a Daemon. Nothing listens until Start.
func New(c Config, opts ...Option) (*Daemon, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	d := &Daemon{cfg: c, addrs: make(map[string]net.Addr), errc: make(chan error, 3)}
	for _, o := range opts {
		o(d)
	}
	if d.sampler == nil {
		d.sampler = process.NewSystemSampler()
	}
	if d.term == nil {
		d.term = process.SignalTerminator{}
	}
	if d.sink == nil && c.History.Enabled {
		s, err := factory.NewSinkFromDSN(c.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("history sink: %w", err)
		}
		d.sink = s
		if cl, ok := s.(io.Closer); ok {
			d.closers = append(d.closers, cl)
		}
	}

	strategies, err := policy.Build(c.KillTabStrategies, c.Limits())
	if err != nil {
		return nil, err
	}
	wl, err := policy.NewWhitelist(c.Whitelist)
	if err != nil {
		return nil, err
	}

	d.store = status.NewStore(c.BrowserName)
	d.ch = acquire.New(d.store, d.sampler, detector.RendererDetector{}, acquire.WithAllowedOrigins(c.Server.AllowedOrigins...))
	d.engine = policy.NewEngine(d.ch, d.store, policy.Options{
		Interval:   c.Interval(),
		Strategies: strategies,
		Rules:      policy.Rules{Whitelist: wl, WhitelistAudible: c.WhitelistAudible},
		Terminator: d.term,
		Sink:       d.sink,
	})
	return d, nil
}

// Start binds every configured listener and launches the background
// goroutines. It returns once the daemon is serving.
func (d *Daemon) Start(ctx context.Context) error {
	if d.cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	type endpoint struct {
		name string
		srv  *http.Server
	}
	eps := []endpoint{{"extension", acquire.NewServer(d.cfg.Server.Listen, d.ch)}}
	if d.cfg.Report.Enabled {
		eps = append(eps, endpoint{"report", iapi.NewServer(d.cfg.Report.Listen, "", d.store)})
	}
	if d.cfg.Metrics.Enabled {
		eps = append(eps, endpoint{"metrics", metrics.NewServer(d.cfg.Metrics.Listen)})
	}

	var lns []net.Listener
	for _, ep := range eps {
		ln, err := net.Listen("tcp", ep.srv.Addr)
		if err != nil {
			for _, l := range lns {
				_ = l.Close()
			}
			return fmt.Errorf("listen %s on %s: %w", ep.name, ep.srv.Addr, err)
		}
		lns = append(lns, ln)
	}

	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	for i, ep := range eps {
		d.servers = append(d.servers, ep.srv)
		d.addrs[ep.name] = lns[i].Addr()
	}
	d.mu.Unlock()

	for i, ep := range eps {
		srv, ln, name := ep.srv, lns[i], ep.name
		slog.Info("Listening", "endpoint", name, "addr", ln.Addr().String())
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server stopped", "endpoint", name, "error", err)
				d.errc <- fmt.Errorf("%s server: %w", name, err)
			}
		}()
	}

	d.wg.Add(2)
	go func() { defer d.wg.Done(); d.ch.Run(ctx) }()
	go func() { defer d.wg.Done(); d.engine.Run(ctx) }()
	return nil
}

// Errors reports servers that stopped unexpectedly.
func (d *Daemon) Errors() <-chan error { return d.errc }

// Shutdown stops the loops and servers and releases the history sink.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	cancel, servers, closers := d.cancel, d.servers, d.closers
	d.servers, d.closers = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	// Shutdown does not track hijacked WebSocket connections.
	d.ch.Close()

	done := make(chan struct{})
	go func() { d.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run starts the daemon and blocks until ctx is done or a server fails.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-d.errc:
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, d.Shutdown(sctx))
}

// Addr returns the bound address of "extension", "report" or "metrics", or nil.
func (d *Daemon) Addr(endpoint string) net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addrs[endpoint]
}

// View returns a snapshot of the tracked tabs.
func (d *Daemon) View() View { return d.store.View() }

// Report returns the same projection served on /tabs.
func (d *Daemon) Report() Report { return iapi.BuildReport(d.store.View()) }

// Connections returns the number of connected extensions.
func (d *Daemon) Connections() int { return d.ch.Connections() }

// ReportHandler returns the report endpoints mounted under basePath, for
// embedding in another HTTP server.
func (d *Daemon) ReportHandler(basePath string) http.Handler {
	return iapi.NewRouter(d.store, basePath).Handler()
}

// ExtensionHandler returns the extension WebSocket endpoint for embedding.
func (d *Daemon) ExtensionHandler() http.Handler { return d.ch }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler { return metrics.Handler() }

// ServeMetrics serves /metrics on addr until the listener fails.
func ServeMetrics(addr string) error { return metrics.NewServer(addr).ListenAndServe() }
