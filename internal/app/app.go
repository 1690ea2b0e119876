// Package app wires configuration into a running stop gate.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/stopgate/internal/analyzer"
	"github.com/danielpatrickdp/stopgate/internal/audit"
	"github.com/danielpatrickdp/stopgate/internal/config"
	"github.com/danielpatrickdp/stopgate/internal/gate"
	"github.com/danielpatrickdp/stopgate/internal/hooks"
	"github.com/danielpatrickdp/stopgate/internal/logging"
	"github.com/danielpatrickdp/stopgate/internal/mcptools"
	"github.com/danielpatrickdp/stopgate/internal/metrics"
	"github.com/danielpatrickdp/stopgate/internal/notify"
	"github.com/danielpatrickdp/stopgate/internal/session"
	"github.com/danielpatrickdp/stopgate/internal/transport/grpcapi"
	"github.com/danielpatrickdp/stopgate/internal/transport/status"
	"github.com/danielpatrickdp/stopgate/internal/transport/stdio"
)

const (
	lexiconDebounce = 250 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// #region app

// Options carries process streams the composition root cannot pick itself.
type Options struct {
	// Out receives stdio responses and, for the stdio notifier, inject lines.
	Out   io.Writer
	OutMu *sync.Mutex
}

// App owns every long-lived component.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Store    *session.Store
	Analyzer *analyzer.Analyzer
	Gate     *gate.Gate
	Plugin   *hooks.Plugin
	Metrics  *metrics.Metrics
	Provider *metrics.Provider
	Audit    *audit.Store
	Notifier *notify.Built

	out     io.Writer
	outMu   *sync.Mutex
	dedupe  *hooks.Dedupe
	watcher *config.Watcher
}

// New builds the component graph from cfg. Close releases it.
func New(cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: logging.OrNop(log), Store: session.NewStore(), out: opts.Out, outMu: opts.OutMu}
	if a.outMu == nil {
		a.outMu = &sync.Mutex{}
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	a.Analyzer = analyzer.NewDefault()
	if path := cfg.Analyzer.LexiconPath; path != "" {
		if err := a.Analyzer.Reload(path); err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		if cfg.Analyzer.Watch {
			w, err := config.WatchFile(path, lexiconDebounce, a.reloadLexicon, a.Log)
			if err != nil {
				return nil, fmt.Errorf("watch lexicon: %w", err)
			}
			a.watcher = w
		}
	}

	a.Provider = metrics.NewProvider()
	m, err := metrics.New(a.Provider)
	if err != nil {
		return nil, err
	}
	a.Metrics = m

	if cfg.Audit.Enabled {
		db, err := audit.NewStore(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		a.Audit = db
	}

	a.Notifier, err = notify.New(notify.Options{
		Kind:            cfg.Notifier.Kind,
		Addr:            cfg.Notifier.Addr,
		NATSURL:         cfg.Notifier.NATSURL,
		SubjectPrefix:   cfg.Notifier.SubjectPrefix,
		Out:             a.out,
		OutMu:           a.outMu,
		BreakerFailures: cfg.Notifier.BreakerFailures,
		BreakerCooldown: cfg.Notifier.BreakerCooldownDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("build notifier: %w", err)
	}

	a.dedupe, err = hooks.NewDedupe(cfg.Dedupe.MaxEntries, cfg.Dedupe.TTLDuration())
	if err != nil {
		return nil, err
	}

	gateOpts := []gate.Option{gate.WithLogger(a.Log.Named("gate")), gate.WithMetrics(a.Metrics)}
	deps := hooks.Deps{
		Store:    a.Store,
		Analyzer: a.Analyzer,
		Dedupe:   a.dedupe,
		Logger:   a.Log.Named("hooks"),
		Metrics:  a.Metrics,
		MaxWords: cfg.Extract.MaxWords,
	}
	if a.Audit != nil {
		gateOpts = append(gateOpts, gate.WithAudit(a.Audit))
		deps.Audit = a.Audit
	}
	a.Gate = gate.NewGate(a.Store, a.Notifier.Notifier, gate.Config{
		MaxDenials:    cfg.Gate.MaxDenials,
		NotifyTimeout: cfg.Gate.NotifyTimeoutDuration(),
	}, gateOpts...)
	deps.Gate = a.Gate
	a.Plugin = hooks.New(deps)

	a.Log.Info("stop gate ready",
		zap.Int("max_denials", cfg.Gate.MaxDenials),
		zap.String("notifier", cfg.Notifier.Kind),
		zap.Bool("audit", a.Audit != nil),
		zap.String("lexicon", cfg.Analyzer.LexiconPath))
	ok = true
	return a, nil
}

func (a *App) reloadLexicon() {
	if err := a.Analyzer.Reload(a.Config.Analyzer.LexiconPath); err != nil {
		a.Log.Warn("lexicon reload failed, keeping previous rules", zap.Error(err))
		return
	}
	a.Log.Info("lexicon reloaded", zap.Int("rules", len(a.Analyzer.Rules())))
}

// Close stops watchers and closes connections. It is safe on a partly
// built App.
func (a *App) Close() error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	a.dedupe.Close()
	if a.Notifier != nil {
		errs = append(errs, a.Notifier.Close())
	}
	if a.Audit != nil {
		errs = append(errs, a.Audit.Close())
	}
	if a.Provider != nil {
		errs = append(errs, a.Provider.Shutdown(context.Background()))
	}
	return errors.Join(errs...)
}

// #endregion app

// #region serve

// StatusDeps returns the data sources for the status API.
func (a *App) StatusDeps() status.Deps {
	d := status.Deps{
		Sessions:   a.Store,
		Metrics:    a.Provider,
		Breaker:    a.Notifier.Breaker,
		MaxDenials: a.Config.Gate.MaxDenials,
		Logger:     a.Log.Named("status"),
	}
	if a.Audit != nil {
		d.Decisions = a.Audit
	}
	return d
}

// ServeNetwork runs the gRPC plugin service on grpcLis and the status API on
// httpLis until ctx is done. Either listener may be nil.
func (a *App) ServeNetwork(ctx context.Context, grpcLis, httpLis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	if grpcLis != nil {
		srv := grpcapi.NewGRPCServer(a.Log.Named("grpc"))
		grpcapi.Register(srv, grpcapi.NewServer(a.Plugin))
		g.Go(func() error {
			a.Log.Info("grpc listening", zap.String("addr", grpcLis.Addr().String()))
			return srv.Serve(grpcLis)
		})
		g.Go(func() error {
			<-ctx.Done()
			srv.GracefulStop()
			return nil
		})
	}

	if httpLis != nil {
		srv := status.NewServer(httpLis.Addr().String(), a.StatusDeps())
		g.Go(func() error {
			a.Log.Info("status api listening", zap.String("addr", httpLis.Addr().String()))
			if err := srv.Serve(httpLis); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

// ServeStdio answers hook requests read from in until it is exhausted.
func (a *App) ServeStdio(ctx context.Context, in io.Reader) error {
	if a.out == nil {
		return fmt.Errorf("stdio transport needs an output stream")
	}
	return stdio.NewServer(a.Plugin, a.out, a.outMu, a.Log.Named("stdio")).Serve(ctx, in)
}

// MCPServer exposes the analyzer and session state as MCP tools.
func (a *App) MCPServer() *server.MCPServer {
	return mcptools.NewServer(a.Analyzer, a.Store, a.Config.Extract.MaxWords, a.Config.Gate.MaxDenials)
}

// #endregion serve
