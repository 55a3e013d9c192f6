// Package app wires the trigger mic subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates the engines from the
// provider registry and builds the filter, Run serves the HTTP surface, the
// local output sink and the config watcher until ctx is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, register mock factories in the [config.Registry] and inject
// writers and metrics via functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/triggermic/internal/config"
	"github.com/MrWong99/triggermic/internal/filter"
	"github.com/MrWong99/triggermic/internal/health"
	"github.com/MrWong99/triggermic/internal/observe"
	"github.com/MrWong99/triggermic/internal/resilience"
	"github.com/MrWong99/triggermic/internal/server"
	"github.com/MrWong99/triggermic/pkg/audio"
	"github.com/MrWong99/triggermic/pkg/provider/stt"
)

const httpShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config
	reg *config.Registry

	filter     *filter.Filter
	recognizer *resilience.Recognizer
	health     *health.Handler
	httpSrv    *http.Server
	listener   net.Listener
	sink       io.Writer
	watcher    *config.Watcher

	metrics    *observe.Metrics
	gatherer   prometheus.Gatherer
	level      *slog.LevelVar
	watchPath  string
	watchEvery time.Duration

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics injects the metrics instance shared by the filter and the HTTP
// middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer sets the Prometheus registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// WithOutput replaces the writer configured by output.path.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.sink = w }
}

// WithLogLevel gives the app control over the process log level so that a
// reloaded server.log_level takes effect.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigWatch reloads hot settings whenever the file at path changes.
func WithConfigWatch(path string, every time.Duration) Option {
	return func(a *App) {
		a.watchPath = path
		a.watchEvery = every
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App. Engines are built from reg according to cfg. When any
// step fails, everything acquired so far is released before the error is
// returned.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, reg: reg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	ok := false
	defer func() {
		if !ok {
			a.closeAll()
		}
	}()

	// ── 1. Filter (vad, recognizer, upstream) ────────────────────────────
	if err := a.initFilter(ctx); err != nil {
		return nil, fmt.Errorf("app: init filter: %w", err)
	}

	// ── 2. Output sink ───────────────────────────────────────────────────
	if err := a.initSink(); err != nil {
		return nil, fmt.Errorf("app: init output: %w", err)
	}

	// ── 3. HTTP surface ──────────────────────────────────────────────────
	a.health = health.New(health.Recognizer(a.recognizer), health.Upstream(cfg.Trigger.Source))
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	// ── 4. Config watcher ────────────────────────────────────────────────
	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.Apply, config.WithInterval(a.watchEvery))
		if err != nil {
			return nil, fmt.Errorf("app: init watcher: %w", err)
		}
		a.watcher = w
	}

	ok = true
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initFilter(ctx context.Context) error {
	var upstream audio.Source
	if name := a.cfg.Trigger.Source; name != "" {
		if src, found := a.cfg.SourceByName(name); found {
			s, err := a.reg.CreateSource(src)
			if err != nil {
				return fmt.Errorf("source %q: %w", name, err)
			}
			if c, isCloser := s.(io.Closer); isCloser {
				a.closers = append(a.closers, c.Close)
			}
			upstream = s
		}
	}

	vadEngine, err := a.reg.CreateVAD(a.cfg.Providers.VAD)
	if err != nil {
		return err
	}

	f, err := filter.New(ctx, FilterConfig(a.cfg), filter.Deps{
		Upstream:       upstream,
		VAD:            vadEngine,
		OpenRecognizer: a.openRecognizer,
		RecognizerName: a.cfg.Providers.STT.Name,
	}, filter.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.filter = f
	a.closers = append(a.closers, f.Close)
	return nil
}

// openRecognizer builds the breaker-guarded primary recognizer plus its
// fallbacks.
func (a *App) openRecognizer(context.Context) (stt.Recognizer, error) {
	p := a.cfg.Providers
	breaker := resilience.CircuitBreakerConfig{
		MaxFailures:  p.STTBreaker.MaxFailures,
		ResetTimeout: p.STTBreaker.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("recognizer breaker state changed", "engine", name, "from", from, "to", to)
		},
	}

	primary, err := a.reg.CreateSTT(p.STT)
	if err != nil {
		return nil, fmt.Errorf("stt %q: %w", p.STT.Name, err)
	}
	rec := resilience.NewRecognizer(primary, p.STT.Name, breaker)
	for i, entry := range p.STTFallbacks {
		fb, err := a.reg.CreateSTT(entry)
		if err != nil {
			_ = rec.Close()
			return nil, fmt.Errorf("stt fallback %d %q: %w", i, entry.Name, err)
		}
		rec.AddFallback(entry.Name, fb)
	}
	a.recognizer = rec
	return rec, nil
}

func (a *App) initSink() error {
	if a.sink != nil {
		return nil
	}
	switch path := a.cfg.Output.Path; path {
	case "":
	case "-":
		a.sink = os.Stdout
	default:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		a.sink = f
		a.closers = append(a.closers, f.Close)
	}
	return nil
}

func (a *App) initServer() error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	a.listener = ln
	a.closers = append(a.closers, func() error {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})

	srvOpts := []server.Option{server.WithMetrics(a.metrics)}
	if a.gatherer != nil {
		srvOpts = append(srvOpts, server.WithGatherer(a.gatherer))
	}
	a.httpSrv = &http.Server{
		Handler:           server.New(a.filter, a.health, srvOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// FilterConfig translates the trigger section of cfg into a filter config.
func FilterConfig(cfg *config.Config) filter.Config {
	t := cfg.Trigger
	return filter.Config{
		TriggerWord:     t.TriggerWord,
		Source:          t.Source,
		SampleRate:      t.SampleRate,
		FrameMs:         t.FrameMs,
		SilenceFrames:   t.SilenceFrames,
		MaxSegmentBytes: t.MaxSegmentBytes,
		Sensitivity:     t.Sensitivity(),
		FlushOnEnd:      t.FlushOnEnd,
	}
}

// Filter returns the trigger mic.
func (a *App) Filter() *filter.Filter { return a.filter }

// Addr returns the HTTP listen address, or nil when the HTTP surface is
// disabled.
func (a *App) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves until ctx is cancelled and then returns ctx.Err(). Without an
// HTTP surface, Run also returns (with nil) once the output sink session
// ends, so a finite input file makes the process exit.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if a.sink != nil {
		g.Go(func() error {
			err := a.runSink(gctx)
			if a.httpSrv == nil {
				cancel()
			}
			return err
		})
	}

	if a.httpSrv != nil {
		g.Go(func() error {
			var err error
			if tls := a.cfg.Server.TLS; tls != nil {
				err = a.httpSrv.ServeTLS(a.listener, tls.CertFile, tls.KeyFile)
			} else {
				err = a.httpSrv.Serve(a.listener)
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: http server: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), httpShutdownTimeout)
			defer scancel()
			return a.httpSrv.Shutdown(sctx)
		})
	}

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	slog.Info("trigger mic running",
		"source", a.cfg.Trigger.Source,
		"trigger_word", a.filter.TriggerWord(),
		"http", a.Addr() != nil,
		"sink", a.sink != nil,
	)

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// runSink runs one long-lived session that writes every forwarded chunk to
// the output writer.
func (a *App) runSink(ctx context.Context) error {
	var written int64
	err := a.filter.Stream(ctx, audio.StreamRequest{Codec: audio.CodecPCM16}, func(c audio.Chunk) bool {
		n, err := a.sink.Write(c.Data)
		written += int64(n)
		if err != nil {
			slog.Error("output sink write failed", "err", err)
			return false
		}
		return true
	})
	slog.Info("output sink session ended", "bytes", written)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: output sink: %w", err)
	}
	return nil
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Apply hot-applies the differences between old and new. Settings that need
// a restart are logged and otherwise ignored.
func (a *App) Apply(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.HotChanged() {
		if err := a.filter.Reconfigure(FilterConfig(new)); err != nil {
			slog.Error("reconfigure failed; keeping previous trigger settings", "err", err)
		} else {
			slog.Info("trigger settings reloaded",
				"trigger_word", new.Trigger.TriggerWord,
				"vad_sensitivity", new.Trigger.Sensitivity(),
				"silence_frames", new.Trigger.SilenceFrames,
			)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// ParseLevel maps a config log level to a slog level. Unknown levels map to
// info.
func ParseLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases everything acquired by a failed New.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}
