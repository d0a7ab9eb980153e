package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/tabguard/internal/acquire"
	"github.com/loykin/tabguard/internal/history"
	"github.com/loykin/tabguard/internal/metrics"
	"github.com/loykin/tabguard/internal/process"
	"github.com/loykin/tabguard/internal/status"
)

const (
	// resultWaitTicks is how many check intervals a refresh may take before it is abandoned.
	resultWaitTicks = 4
	historyTimeout  = 2 * time.Second
)

// Refresher asks the extension for fresh tab data.
type Refresher interface {
	Request() bool
	Results() <-chan acquire.Result
}

// Viewer exposes the latest status snapshot.
type Viewer interface {
	View() status.View
}

// Options configures an Engine.
type Options struct {
	Interval   time.Duration
	Strategies []Strategy
	Rules      Rules
	Terminator process.Terminator
	// Sink receives one event per termination attempt. Optional.
	Sink history.Sink
}

// Kill is one termination attempt.
type Kill struct {
	Candidate
	Outcome process.Outcome
	Err     error
}

// Engine periodically refreshes tab data and applies the strategies.
type Engine struct {
	ch    Refresher
	store Viewer
	opts  Options
}

func NewEngine(ch Refresher, store Viewer, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Terminator == nil {
		opts.Terminator = process.SignalTerminator{}
	}
	return &Engine{ch: ch, store: store, opts: opts}
}

// Run drives the tick loop until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	interval := e.opts.Interval
	wait := resultWaitTicks * interval
	slog.Info("Policy engine started", "interval", interval, "strategies", e.strategyNames())

	for {
		start := time.Now()
		if !e.ch.Request() {
			metrics.IncRefresh(metrics.RefreshDropped)
			slog.Warn("Refresh request already pending")
		}

		timer := time.NewTimer(wait)
		var res acquire.Result
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case res = <-e.ch.Results():
			timer.Stop()
		case <-timer.C:
			metrics.IncRefresh(metrics.RefreshTimeout)
			slog.Warn("Timed out waiting for tab data, retrying", "timeout", wait)
			continue
		}

		if res.OK() {
			e.Pass(ctx)
		} else {
			slog.Warn("Skipping strategies after failed refresh", "error", res.Err)
		}

		elapsed := time.Since(start)
		metrics.ObserveTick(elapsed)
		if elapsed > interval {
			metrics.IncTickOverrun()
			slog.Warn("Tick took longer than check interval", "elapsed", elapsed, "interval", interval)
			continue
		}
		sleep := time.NewTimer(interval - elapsed)
		select {
		case <-ctx.Done():
			sleep.Stop()
			return
		case <-sleep.C:
		}
	}
}

// Pass evaluates every strategy against one view and terminates the selected
// tabs. A pid selected by several strategies is signalled once.
func (e *Engine) Pass(ctx context.Context) []Kill {
	v := e.store.View()
	if v.Len() == 0 {
		return nil
	}

	var kills []Kill
	seen := make(map[int32]struct{})
	for _, s := range e.opts.Strategies {
		for _, c := range s.Select(v, e.opts.Rules) {
			if _, dup := seen[c.PID]; dup {
				slog.Debug("Tab already selected this pass", "pid", c.PID, "strategy", c.Strategy)
				continue
			}
			seen[c.PID] = struct{}{}
			kills = append(kills, e.kill(ctx, v, c))
		}
	}
	return kills
}

func (e *Engine) kill(ctx context.Context, v status.View, c Candidate) Kill {
	t := v.Tabs[c.PID]
	rss := v.MemoryRSS(c.PID)
	outcome, err := e.opts.Terminator.Terminate(c.PID)

	attrs := []any{"pid", c.PID, "title", t.Title, "url", t.URL, "rss", rss, "strategy", c.Strategy, "reason", c.Reason}
	switch outcome {
	case process.Delivered:
		slog.Info("Killed tab", attrs...)
	case process.Unsupported:
		slog.Warn("Cannot kill tab on this platform", append(attrs, "error", err)...)
	default:
		slog.Error("Failed to kill tab", append(attrs, "error", err)...)
	}
	metrics.IncKill(c.Strategy, outcome.String())

	if e.opts.Sink != nil {
		ev := history.NewEvent()
		ev.Strategy = c.Strategy
		ev.Reason = c.Reason
		ev.PID = c.PID
		ev.Title = t.Title
		ev.URL = t.URL
		ev.RSS = rss
		ev.Outcome = outcome.String()
		if err != nil {
			ev.Error = err.Error()
		}
		if herr := history.Deliver(ctx, e.opts.Sink, ev, historyTimeout); herr != nil {
			slog.Warn("Failed to record kill history", "pid", c.PID, "error", herr)
		}
	}
	return Kill{Candidate: c, Outcome: outcome, Err: err}
}

func (e *Engine) strategyNames() []string {
	out := make([]string, 0, len(e.opts.Strategies))
	for _, s := range e.opts.Strategies {
		out = append(out, s.Name())
	}
	return out
}
