// Package scopetray wires the tray protocol surface, the compositor
// supervisor and the configuration layer into an embeddable application.
package scopetray

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scopetray/scopetray/internal/config"
	"github.com/scopetray/scopetray/internal/controller"
	"github.com/scopetray/scopetray/internal/history"
	"github.com/scopetray/scopetray/internal/logsink"
	"github.com/scopetray/scopetray/internal/menu"
	"github.com/scopetray/scopetray/internal/metrics"
	"github.com/scopetray/scopetray/internal/notify"
	"github.com/scopetray/scopetray/internal/server"
	"github.com/scopetray/scopetray/internal/supervisor"
	"github.com/scopetray/scopetray/internal/tray"
)

// Re-export the types external consumers embed against.

type Config = config.Config

type Settings = config.Settings

type HistorySink = history.Sink

// LoadConfig reads the TOML configuration at path, falling back to defaults
// when the file does not exist.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() string { return config.DefaultPath() }

// RegisterMetricsDefault registers the tray metrics with the default
// prometheus registry.
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }

// App is the assembled daemon. Build one with New and drive it with Run.
type App struct {
	cfgPath string
	cfg     config.Config

	sup    *supervisor.Supervisor
	model  *menu.Model
	tray   *tray.Server
	ctrl   *controller.Controller
	sink   *logsink.Fanout
	hist   history.Sink
	cancel context.CancelFunc
}

// New assembles the application from the configuration at cfgPath.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	app := &App{cfgPath: cfgPath, cfg: cfg}

	app.sink = logsink.NewFanout(logsink.FileConfig{
		Path:       cfg.Log.Path,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})

	app.sup = supervisor.New(supervisor.Options{
		ReadyMatcher: supervisor.DefaultReadyMatcher,
		Output:       app.sink.WriteLine,
	})

	app.hist = history.Nop{}
	if cfg.HistoryPath != "" {
		sink, err := history.NewSQLite(cfg.HistoryPath)
		if err != nil {
			slog.Warn("History disabled, sqlite open failed", "path", cfg.HistoryPath, "error", err)
		} else {
			app.hist = sink
		}
	}

	app.model = menu.NewModel()
	app.model.Rebuild(cfg.Settings, false)
	return app, nil
}

// SetAPIListen overrides the control API listen address before Run.
func (a *App) SetAPIListen(addr string) { a.cfg.APIListen = addr }

// SetMetricsListen overrides the metrics listen address before Run.
func (a *App) SetMetricsListen(addr string) { a.cfg.MetricsListen = addr }

// Supervisor exposes the process supervisor for embedding and tests.
func (a *App) Supervisor() *supervisor.Supervisor { return a.sup }

// Shutdown stops a running App. Safe to call before Run; it then does nothing.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
}

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config { return a.cfg }

// Run connects to the session bus, announces the tray item and blocks until
// ctx is cancelled or Quit is chosen from the menu. The compositor is stopped
// on the way out.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer cancel()

	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer func() { _ = conn.Close() }()

	a.tray = tray.NewServer(a.model, nil, nil)
	a.ctrl = controller.New(controller.Options{
		ConfigPath: a.cfgPath,
		Config:     a.cfg,
		Supervisor: a.sup,
		Tray:       a.tray,
		Notifier:   notify.New(conn),
		History:    a.hist,
		Quit:       cancel,
	})
	a.tray.SetCallbacks(a.ctrl.HandleAction, a.ctrl.HandleActivate)

	if err := a.tray.Connect(conn); err != nil {
		return fmt.Errorf("export tray item: %w", err)
	}

	if err := RegisterMetricsDefault(); err != nil {
		slog.Warn("Could not register metrics", "error", err)
	}

	var apiSrv, metricsSrv *http.Server
	if a.cfg.APIListen != "" {
		apiSrv, err = server.NewServer(a.cfg.APIListen, "", a.ctrl)
		if err != nil {
			return fmt.Errorf("control api: %w", err)
		}
		slog.Info("Control API listening", "addr", a.cfg.APIListen)
	}
	if a.cfg.MetricsListen != "" {
		metricsSrv = &http.Server{
			Addr:              a.cfg.MetricsListen,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server stopped", "error", err)
			}
		}()
		slog.Info("Metrics listening", "addr", a.cfg.MetricsListen)
	}

	if err := config.Watch(ctx, a.cfgPath, a.ctrl.ReloadConfig); err != nil {
		slog.Warn("Config watching disabled", "error", err)
	}

	slog.Info("Tray item online", "bus_name", tray.BusName())
	a.ctrl.Run(ctx)

	slog.Info("Shutting down")
	_ = a.sup.Stop()
	if apiSrv != nil {
		_ = apiSrv.Close()
	}
	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	_ = a.hist.Close()
	_ = a.sink.Close()
	return nil
}
