package controller

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/scopetray/scopetray/internal/config"
	"github.com/scopetray/scopetray/internal/history"
	"github.com/scopetray/scopetray/internal/menu"
	"github.com/scopetray/scopetray/internal/supervisor"
	"github.com/scopetray/scopetray/internal/tray"
)

type recordingSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (r *recordingSink) Send(_ context.Context, e history.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) types() []history.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]history.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newTestController(t *testing.T, mutate func(*Options)) (*Controller, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	opts := Options{
		ConfigPath: path,
		Config:     config.Default(),
		Supervisor: supervisor.New(supervisor.Options{}),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts), path
}

func TestToggleActionFlipsAndPersists(t *testing.T) {
	c, path := newTestController(t, nil)

	c.HandleAction(menu.Action{Kind: menu.ActionToggle, Value: menu.ToggleHDR})
	if !c.Config().Settings.HDR {
		t.Fatalf("HDR not flipped in memory")
	}

	saved, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load saved config: %v", err)
	}
	if !saved.Settings.HDR {
		t.Fatalf("HDR not persisted")
	}
}

func TestUnknownToggleIsIgnored(t *testing.T) {
	c, _ := newTestController(t, nil)
	before := c.Config()
	c.HandleAction(menu.Action{Kind: menu.ActionToggle, Value: "sharpness"})
	if c.Config() != before {
		t.Fatalf("unknown toggle mutated settings")
	}
}

func TestSetResolutionAction(t *testing.T) {
	c, _ := newTestController(t, nil)

	c.HandleAction(menu.Action{Kind: menu.ActionSetResolution, Value: "2560x1440"})
	s := c.Config().Settings
	if s.RenderWidth != 2560 || s.RenderHeight != 1440 {
		t.Fatalf("resolution = %dx%d", s.RenderWidth, s.RenderHeight)
	}

	c.HandleAction(menu.Action{Kind: menu.ActionSetResolution, Value: "garbage"})
	s = c.Config().Settings
	if s.RenderWidth != 2560 || s.RenderHeight != 1440 {
		t.Fatalf("malformed resolution applied: %dx%d", s.RenderWidth, s.RenderHeight)
	}
}

func TestSetFilterAction(t *testing.T) {
	c, _ := newTestController(t, nil)

	c.HandleAction(menu.Action{Kind: menu.ActionSetFilter, Value: config.FilterLinear})
	if got := c.Config().Settings.Filter; got != config.FilterLinear {
		t.Fatalf("filter = %q", got)
	}

	c.HandleAction(menu.Action{Kind: menu.ActionSetFilter, Value: "bicubic"})
	if got := c.Config().Settings.Filter; got != config.FilterLinear {
		t.Fatalf("unknown filter applied: %q", got)
	}
}

func TestOpenActionsUseOpener(t *testing.T) {
	var mu sync.Mutex
	var opened []string
	c, path := newTestController(t, func(o *Options) {
		o.Config.Log.Path = "/var/log/compositor.log"
		o.Opener = func(target string) error {
			mu.Lock()
			opened = append(opened, target)
			mu.Unlock()
			return nil
		}
	})

	c.HandleAction(menu.Action{Kind: menu.ActionOpenSettings})
	c.HandleAction(menu.Action{Kind: menu.ActionOpenLogs})

	mu.Lock()
	defer mu.Unlock()
	if len(opened) != 2 || opened[0] != path || opened[1] != "/var/log/compositor.log" {
		t.Fatalf("opened = %v", opened)
	}
}

func TestQuitActionInvokesQuit(t *testing.T) {
	quit := make(chan struct{}, 1)
	c, _ := newTestController(t, func(o *Options) {
		o.Quit = func() { quit <- struct{}{} }
	})

	c.HandleAction(menu.Action{Kind: menu.ActionQuit})
	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatalf("quit callback not invoked")
	}
}

func TestReloadConfigPicksUpFileChanges(t *testing.T) {
	c, path := newTestController(t, nil)

	edited := config.Default()
	edited.Settings.Filter = config.FilterNearest
	edited.Settings.AutoRestart = true
	if err := config.Save(path, edited); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c.ReloadConfig()
	got := c.Config().Settings
	if got.Filter != config.FilterNearest || !got.AutoRestart {
		t.Fatalf("reload did not apply: %+v", got)
	}
}

func TestReloadConfigIgnoresInvalidFile(t *testing.T) {
	c, path := newTestController(t, nil)
	before := c.Config()

	broken := config.Default()
	broken.Settings.Filter = "fsr"
	if err := config.Save(path, broken); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Corrupt the file after a valid save.
	if err := writeFile(path, "filter = [[["); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	c.ReloadConfig()
	if c.Config() != before {
		t.Fatalf("invalid reload replaced config")
	}
}

func TestCrashEventRecordsHistoryAndRefreshesTray(t *testing.T) {
	sink := &recordingSink{}
	model := menu.NewModel()
	traySrv := tray.NewServer(model, nil, nil)
	c, _ := newTestController(t, func(o *Options) {
		o.History = sink
		o.Tray = traySrv
		o.Config.Settings.AutoRestart = true
	})

	ctx := context.Background()
	c.handleEvent(ctx, supervisor.Event{Type: supervisor.EventStarted})
	c.handleEvent(ctx, supervisor.Event{Type: supervisor.EventStopped, ExitCode: 139, Unexpected: true})

	want := []history.EventType{
		history.EventStarted,
		history.EventCrashed,
		history.EventRestartScheduled,
	}
	got := sink.types()
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if traySrv.CurrentStatus() != tray.StatusPassive {
		t.Fatalf("tray status after stop = %q", traySrv.CurrentStatus())
	}
	// The model was rebuilt for the stopped state.
	if ids := model.RootIDs(); len(ids) == 0 {
		t.Fatalf("menu model never rebuilt")
	}
}

func TestUserStopRecordsStoppedNotCrashed(t *testing.T) {
	sink := &recordingSink{}
	c, _ := newTestController(t, func(o *Options) { o.History = sink })

	c.handleEvent(context.Background(), supervisor.Event{Type: supervisor.EventStopped, ExitCode: 0})

	got := sink.types()
	if len(got) != 1 || got[0] != history.EventStopped {
		t.Fatalf("history = %v, want [stopped]", got)
	}
}

func TestStartCompositorSpawnFailure(t *testing.T) {
	c, _ := newTestController(t, func(o *Options) {
		o.Config.Compositor = "/nonexistent/compositor/binary"
	})
	if err := c.StartCompositor(); err == nil {
		t.Fatalf("spawn of nonexistent binary succeeded")
	}
	if c.IsRunning() {
		t.Fatalf("running after failed spawn")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestParseResolution(t *testing.T) {
	cases := []struct {
		in   string
		w, h int
		ok   bool
	}{
		{"1920x1080", 1920, 1080, true},
		{"1280x720", 1280, 720, true},
		{"x720", 0, 0, false},
		{"1280x", 0, 0, false},
		{"0x0", 0, 0, false},
		{"widexhigh", 0, 0, false},
		{"1920", 0, 0, false},
	}
	for _, tc := range cases {
		w, h, ok := parseResolution(tc.in)
		if w != tc.w || h != tc.h || ok != tc.ok {
			t.Fatalf("parseResolution(%q) = %d,%d,%v", tc.in, w, h, ok)
		}
	}
}
