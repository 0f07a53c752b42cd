// Package controller connects the tray protocol surface to the compositor
// supervisor and the on-disk configuration.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/scopetray/scopetray/internal/config"
	"github.com/scopetray/scopetray/internal/history"
	"github.com/scopetray/scopetray/internal/menu"
	"github.com/scopetray/scopetray/internal/metrics"
	"github.com/scopetray/scopetray/internal/notify"
	"github.com/scopetray/scopetray/internal/supervisor"
	"github.com/scopetray/scopetray/internal/tray"
)

// Options carry the collaborators a Controller drives. Tray, Notifier and
// History may be nil; each degrades to a no-op.
type Options struct {
	ConfigPath string
	Config     config.Config
	Supervisor *supervisor.Supervisor
	Tray       *tray.Server
	Notifier   *notify.Notifier
	History    history.Sink
	// Opener launches a file or directory in the user's preferred application.
	// Nil selects xdg-open.
	Opener func(target string) error
	// Quit tears the daemon down. Nil disables the Quit menu entry's effect.
	Quit func()
}

// Controller owns the runtime configuration snapshot and translates lifecycle
// events and menu activations into supervisor and config operations.
type Controller struct {
	mu         sync.Mutex
	cfgPath    string
	cfg        config.Config
	sup        *supervisor.Supervisor
	tray       *tray.Server
	notifier   *notify.Notifier
	hist       history.Sink
	openTarget func(string) error
	quit       func()
}

// New builds a Controller and seeds the supervisor's restart policy from the
// configuration.
func New(opts Options) *Controller {
	c := &Controller{
		cfgPath:    opts.ConfigPath,
		cfg:        opts.Config,
		sup:        opts.Supervisor,
		tray:       opts.Tray,
		notifier:   opts.Notifier,
		hist:       opts.History,
		openTarget: opts.Opener,
		quit:       opts.Quit,
	}
	if c.hist == nil {
		c.hist = history.Nop{}
	}
	if c.openTarget == nil {
		c.openTarget = func(target string) error {
			return exec.Command("xdg-open", target).Start()
		}
	}
	if c.quit == nil {
		c.quit = func() {}
	}
	c.sup.SetAutoRestart(opts.Config.Settings.AutoRestart)
	return c
}

// Config returns the current configuration snapshot.
func (c *Controller) Config() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Run drains supervisor lifecycle events until ctx is cancelled. It is the
// only goroutine that reads the event channel.
func (c *Controller) Run(ctx context.Context) {
	events := c.sup.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			c.handleEvent(ctx, ev)
		}
	}
}

func (c *Controller) handleEvent(ctx context.Context, ev supervisor.Event) {
	switch ev.Type {
	case supervisor.EventStarted:
		metrics.IncStart()
		c.record(ctx, history.Event{Type: history.EventStarted})
		c.refreshTray(true)
	case supervisor.EventStopped:
		metrics.IncStop()
		c.record(ctx, history.Event{Type: stoppedKind(ev), ExitCode: ev.ExitCode})
		if ev.Unexpected {
			metrics.IncCrash()
			c.notifyCrash(ev.ExitCode)
			if c.Config().Settings.AutoRestart && ev.ExitCode != 0 {
				metrics.IncRestart()
				c.record(ctx, history.Event{Type: history.EventRestartScheduled, ExitCode: ev.ExitCode})
			}
		}
		c.refreshTray(false)
	case supervisor.EventReady:
		c.launchReadyCommand()
	}
}

func stoppedKind(ev supervisor.Event) history.EventType {
	if ev.Unexpected {
		return history.EventCrashed
	}
	return history.EventStopped
}

func (c *Controller) record(ctx context.Context, e history.Event) {
	if err := c.hist.Send(ctx, e); err != nil {
		slog.Warn("Could not record history event", "type", e.Type, "error", err)
	}
}

func (c *Controller) notifyCrash(code int) {
	if c.notifier == nil {
		return
	}
	body := fmt.Sprintf("Gamescope exited unexpectedly with code %d.", code)
	if c.Config().Settings.AutoRestart && code != 0 {
		body += " Restarting..."
	}
	if err := c.notifier.Send("Gamescope crashed", body); err != nil {
		slog.Warn("Could not send crash notification", "error", err)
	}
}

// launchReadyCommand starts the configured follow-up command once the
// compositor reports readiness. The command is fire-and-forget.
func (c *Controller) launchReadyCommand() {
	ready := c.Config().Settings.ReadyCommand
	fields := strings.Fields(ready)
	if len(fields) == 0 {
		return
	}
	slog.Info("Compositor ready, launching follow-up command", "command", ready)
	cmd := exec.Command(fields[0], fields[1:]...)
	if err := cmd.Start(); err != nil {
		slog.Error("Failed to launch follow-up command", "command", ready, "error", err)
		return
	}
	go func() { _ = cmd.Wait() }()
}

// HandleAction dispatches a tray menu activation. It is safe to call from the
// D-Bus handler goroutines.
func (c *Controller) HandleAction(a menu.Action) {
	switch a.Kind {
	case menu.ActionStart:
		if err := c.StartCompositor(); err != nil {
			slog.Error("Start from menu failed", "error", err)
		}
	case menu.ActionStop:
		if err := c.StopCompositor(); err != nil {
			slog.Error("Stop from menu failed", "error", err)
		}
	case menu.ActionSetResolution:
		c.setResolution(a.Value)
	case menu.ActionSetFilter:
		c.setFilter(a.Value)
	case menu.ActionToggle:
		c.toggle(a.Value)
	case menu.ActionOpenSettings:
		c.open(c.cfgPath)
	case menu.ActionOpenLogs:
		c.openLogs()
	case menu.ActionQuit:
		slog.Info("Quit requested from tray menu")
		c.quit()
	}
}

// HandleActivate reacts to a left click on the tray icon: stop when running,
// start otherwise.
func (c *Controller) HandleActivate() {
	if c.sup.IsRunning() {
		if err := c.StopCompositor(); err != nil {
			slog.Error("Stop from tray activation failed", "error", err)
		}
		return
	}
	if err := c.StartCompositor(); err != nil {
		slog.Error("Start from tray activation failed", "error", err)
	}
}

// StartCompositor launches the compositor with the current settings.
func (c *Controller) StartCompositor() error {
	cfg := c.Config()
	if err := c.sup.Start(cfg.BuildArgs()); err != nil {
		metrics.IncSpawnFailure()
		return err
	}
	return nil
}

// StopCompositor terminates the compositor if it is running.
func (c *Controller) StopCompositor() error {
	return c.sup.Stop()
}

// IsRunning reports the supervisor's run state.
func (c *Controller) IsRunning() bool { return c.sup.IsRunning() }

// LogLines returns the buffered compositor output.
func (c *Controller) LogLines() []string { return c.sup.LogLines() }

func (c *Controller) setResolution(value string) {
	w, h, ok := parseResolution(value)
	if !ok {
		slog.Warn("Ignoring malformed resolution action", "value", value)
		return
	}
	c.mutateSettings(func(s *config.Settings) {
		s.RenderWidth = w
		s.RenderHeight = h
	})
}

func (c *Controller) setFilter(value string) {
	switch value {
	case config.FilterFSR, config.FilterNearest, config.FilterLinear:
	default:
		slog.Warn("Ignoring unknown filter action", "value", value)
		return
	}
	c.mutateSettings(func(s *config.Settings) { s.Filter = value })
}

func (c *Controller) toggle(name string) {
	switch name {
	case menu.ToggleFullscreen:
		c.mutateSettings(func(s *config.Settings) { s.Fullscreen = !s.Fullscreen })
	case menu.ToggleHDR:
		c.mutateSettings(func(s *config.Settings) { s.HDR = !s.HDR })
	case menu.ToggleAdaptiveSync:
		c.mutateSettings(func(s *config.Settings) { s.AdaptiveSync = !s.AdaptiveSync })
	case menu.ToggleAutoRestart:
		c.mutateSettings(func(s *config.Settings) { s.AutoRestart = !s.AutoRestart })
	default:
		slog.Warn("Ignoring unknown toggle action", "value", name)
	}
}

// mutateSettings applies fn to the settings, persists the result and refreshes
// the tray menu. Changed settings apply on the next compositor start.
func (c *Controller) mutateSettings(fn func(*config.Settings)) {
	c.mu.Lock()
	fn(&c.cfg.Settings)
	cfg := c.cfg
	c.mu.Unlock()

	c.sup.SetAutoRestart(cfg.Settings.AutoRestart)
	if err := config.Save(c.cfgPath, cfg); err != nil {
		slog.Error("Failed to persist settings", "error", err)
	}
	c.refreshTray(c.sup.IsRunning())
}

// ReloadConfig re-reads the file at the configured path, typically in response
// to an external edit. Invalid files are logged and ignored.
func (c *Controller) ReloadConfig() {
	cfg, err := config.Load(c.cfgPath)
	if err != nil {
		slog.Warn("Ignoring invalid configuration on reload", "path", c.cfgPath, "error", err)
		return
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.sup.SetAutoRestart(cfg.Settings.AutoRestart)
	slog.Info("Configuration reloaded", "path", c.cfgPath)
	c.refreshTray(c.sup.IsRunning())
}

// refreshTray rebuilds the menu tree and pushes the status and layout signals.
func (c *Controller) refreshTray(running bool) {
	if c.tray == nil {
		return
	}
	if running {
		c.tray.SetStatus(tray.StatusActive)
	} else {
		c.tray.SetStatus(tray.StatusPassive)
	}
	changed, revision := c.tray.Model().Rebuild(c.Config().Settings, running)
	if changed {
		metrics.IncMenuRebuild()
		c.tray.LayoutUpdated(revision)
	}
}

func (c *Controller) open(target string) {
	if target == "" {
		return
	}
	if err := c.openTarget(target); err != nil {
		slog.Error("Failed to open target", "target", target, "error", err)
	}
}

func (c *Controller) openLogs() {
	path := c.Config().Log.Path
	if path == "" {
		slog.Warn("No log file configured, nothing to open")
		return
	}
	c.open(path)
}

func parseResolution(value string) (w, h int, ok bool) {
	parts := strings.SplitN(value, "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
