package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reglet-dev/exthost/application/config"
	"github.com/reglet-dev/exthost/application/loader"
	"github.com/reglet-dev/exthost/domain/policy"
	"github.com/reglet-dev/exthost/host"
	"github.com/reglet-dev/exthost/hostfuncs"
	"github.com/reglet-dev/exthost/infrastructure/grantstore"
	"github.com/reglet-dev/exthost/infrastructure/metrics"
	"github.com/reglet-dev/exthost/infrastructure/node"
	"github.com/reglet-dev/exthost/infrastructure/settings"
	"golang.org/x/sync/errgroup"
)

// hostRuntime is a WasmHost wired to the configured engine, grant store,
// metrics and host services.
type hostRuntime struct {
	cfg      config.Config
	logger   *slog.Logger
	engine   *host.Engine
	host     *host.WasmHost
	grants   *grantstore.FileStore
	registry *prometheus.Registry
}

func newHostRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*hostRuntime, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return nil, err
	}

	engine, err := host.NewEngine(ctx,
		host.WithEpochInterval(cfg.EpochInterval),
		host.WithEpochDeadline(cfg.EpochDeadlineTicks),
		host.WithCacheCapacity(cfg.CacheCapacity),
		host.WithEngineCacheObserver(m),
		host.WithEngineLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	grants := grantstore.NewFileStore(grantstore.WithPath(cfg.GrantsFile))
	runner := hostfuncs.NewExecRunner()
	services := hostfuncs.Services{
		Commands: runner,
		HTTP:     hostfuncs.NewHTTPFetcher(),
		Node:     node.NewRuntime(runner),
	}

	h, err := host.NewWasmHost(ctx,
		host.WithEngine(engine),
		host.WithLogger(logger),
		host.WithGrantStore(grants),
		host.WithAppContext(settings.NewApp(settings.NewStaticProvider(cfg.Settings))),
		host.WithWorkDir(cfg.WorkDir),
		host.WithSupportedVersions(cfg.SupportedVersions),
		host.WithServices(services),
		host.WithDenialHandler(policy.MultiDenialHandler{&policy.LogDenialHandler{Logger: logger}, m}),
		host.WithCallObserver(m),
	)
	if err != nil {
		_ = engine.Close(ctx)
		return nil, err
	}

	return &hostRuntime{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		host:     h,
		grants:   grants,
		registry: registry,
	}, nil
}

// loadExtensions instantiates every extension. Extensions that fail to load
// are logged and skipped; the error reports how many failed.
func (r *hostRuntime) loadExtensions(ctx context.Context, exts []*loader.Extension) ([]*host.WasmExtension, error) {
	var loaded []*host.WasmExtension
	var errs []error
	for _, e := range exts {
		ext, err := r.host.LoadExtension(ctx, e.Wasm, e.Manifest)
		if err != nil {
			r.logger.ErrorContext(ctx, "exthost: extension failed to load", "extension", e.Manifest.ID, "dir", e.Dir, "error", err)
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, ext)
	}
	if len(errs) > 0 {
		return loaded, fmt.Errorf("%d of %d extensions failed to load: %w", len(errs), len(exts), errors.Join(errs...))
	}
	return loaded, nil
}

// serve runs the grants watcher and the metrics endpoint, as configured,
// until ctx is done.
func (r *hostRuntime) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if r.cfg.WatchGrants {
		w := settings.NewGrantsWatcher(r.grants.ConfigPath(), r.host, settings.WithLogger(r.logger))
		g.Go(func() error { return w.Run(ctx) })
	}

	if r.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry}))
		srv := &http.Server{
			Addr:              r.cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			r.logger.InfoContext(ctx, "exthost: serving metrics", "addr", r.cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

func (r *hostRuntime) close(ctx context.Context, exts ...*host.WasmExtension) {
	for _, ext := range exts {
		ext.Close()
	}
	for _, ext := range exts {
		<-ext.Done()
	}
	r.host.Close()
	<-r.host.Done()
	if err := r.engine.Close(ctx); err != nil {
		r.logger.WarnContext(ctx, "exthost: engine close failed", "error", err)
	}
}
