// Package tray serves the StatusNotifierItem and com.canonical.dbusmenu
// interfaces for status-bar hosts.
//
// [StatusNotifierItem]: https://www.freedesktop.org/wiki/Specifications/StatusNotifierItem/StatusNotifierItem/
package tray

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/scopetray/scopetray/internal/menu"
)

const (
	ItemInterface = "org.kde.StatusNotifierItem"
	ItemPath      = "/StatusNotifierItem"

	MenuInterface = "com.canonical.dbusmenu"
	MenuPath      = "/MenuBar"

	WatcherInterface = "org.kde.StatusNotifierWatcher"
	WatcherPath      = "/StatusNotifierWatcher"
)

// Status mirrors the StatusNotifierItem status property.
type Status string

const (
	StatusPassive        Status = "Passive"
	StatusActive         Status = "Active"
	StatusNeedsAttention Status = "NeedsAttention"
)

// Server exposes one tray item with one menu. All protocol handlers stay
// usable without a bus connection so the dispatch logic is testable offline;
// signals and property updates are skipped until Connect succeeds.
type Server struct {
	mu     sync.Mutex
	conn   *dbus.Conn
	status Status
	props  *prop.Properties

	model *menu.Model

	// onAction receives resolved menu actions from Event calls.
	onAction func(menu.Action)
	// onActivate runs on primary activation of the item.
	onActivate func()
}

// NewServer creates a server around the given model. Callbacks may be nil.
func NewServer(model *menu.Model, onAction func(menu.Action), onActivate func()) *Server {
	if onAction == nil {
		onAction = func(menu.Action) {}
	}
	if onActivate == nil {
		onActivate = func() {}
	}
	return &Server{
		status:     StatusPassive,
		model:      model,
		onAction:   onAction,
		onActivate: onActivate,
	}
}

// SetCallbacks replaces the action and activation handlers. The controller
// needs the server to exist before it can hand these over, so construction
// accepts nil callbacks and this fills them in.
func (s *Server) SetCallbacks(onAction func(menu.Action), onActivate func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if onAction != nil {
		s.onAction = onAction
	}
	if onActivate != nil {
		s.onActivate = onActivate
	}
}

func (s *Server) actionFunc() func(menu.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onAction
}

func (s *Server) activateFunc() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onActivate
}

// BusName returns the process-unique well-known name for this item.
func BusName() string {
	return fmt.Sprintf("org.kde.StatusNotifierItem-%d-1", os.Getpid())
}

// Connect exports both interfaces on conn, acquires the bus name and
// announces the item to the StatusNotifierWatcher. An unreachable watcher is
// logged as a warning only: the server remains reachable directly.
func (s *Server) Connect(conn *dbus.Conn) error {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := conn.Export(&sniAdapter{s: s}, ItemPath, ItemInterface); err != nil {
		return fmt.Errorf("export %s: %w", ItemInterface, err)
	}
	if err := conn.Export(&menuAdapter{s: s}, MenuPath, MenuInterface); err != nil {
		return fmt.Errorf("export %s: %w", MenuInterface, err)
	}
	if err := s.exportProperties(conn); err != nil {
		return err
	}
	if err := s.exportIntrospection(conn); err != nil {
		return err
	}

	name := BusName()
	reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("request name %s: already taken", name)
	}

	call := conn.Object(WatcherInterface, WatcherPath).Call(
		WatcherInterface+".RegisterStatusNotifierItem",
		dbus.Flags(0),
		name,
	)
	if call.Err != nil {
		slog.Warn("Could not register with StatusNotifierWatcher; is a status bar host running?",
			"error", call.Err)
	} else {
		slog.Info("Registered with StatusNotifierWatcher", "bus_name", name)
	}
	return nil
}

func (s *Server) exportProperties(conn *dbus.Conn) error {
	roProp := func(v any) *prop.Prop {
		return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitTrue}
	}
	sniProps := prop.Map{
		ItemInterface: {
			"Category":      roProp("ApplicationStatus"),
			"Id":            roProp("scopetray"),
			"Title":         roProp("Scopetray"),
			"Status":        roProp(string(s.CurrentStatus())),
			"IconName":      roProp("applications-games"),
			"IconThemePath": roProp(""),
			"Menu":          roProp(dbus.ObjectPath(MenuPath)),
			"ItemIsMenu":    roProp(true),
		},
	}
	p, err := prop.Export(conn, ItemPath, sniProps)
	if err != nil {
		return fmt.Errorf("export item properties: %w", err)
	}
	s.mu.Lock()
	s.props = p
	s.mu.Unlock()

	menuProps := prop.Map{
		MenuInterface: {
			"Version":       roProp(uint32(3)),
			"Status":        roProp("normal"),
			"TextDirection": roProp("ltr"),
			"IconThemePath": roProp([]string{}),
		},
	}
	if _, err := prop.Export(conn, MenuPath, menuProps); err != nil {
		return fmt.Errorf("export menu properties: %w", err)
	}
	return nil
}

func (s *Server) exportIntrospection(conn *dbus.Conn) error {
	if err := conn.Export(introspect.Introspectable(sniIntrospectXML), ItemPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export item introspection: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(menuIntrospectXML), MenuPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export menu introspection: %w", err)
	}
	return nil
}

// CurrentStatus returns the current item status.
func (s *Server) CurrentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus updates the item status. The NewStatus signal fires on every
// actual transition and never on a repeated value.
func (s *Server) SetStatus(st Status) {
	s.mu.Lock()
	if s.status == st {
		s.mu.Unlock()
		return
	}
	s.status = st
	conn := s.conn
	props := s.props
	s.mu.Unlock()

	if props != nil {
		props.SetMust(ItemInterface, "Status", string(st))
	}
	if conn != nil {
		if err := conn.Emit(ItemPath, ItemInterface+".NewStatus", string(st)); err != nil {
			slog.Warn("Failed to emit NewStatus", "error", err)
		}
	}
}

// LayoutUpdated emits the menu invalidation signal carrying revision.
// Called exactly once per completed rebuild that changed the tree.
func (s *Server) LayoutUpdated(revision uint32) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Emit(MenuPath, MenuInterface+".LayoutUpdated", revision, int32(0)); err != nil {
		slog.Warn("Failed to emit LayoutUpdated", "error", err)
	}
}

// Model returns the menu model served by this server.
func (s *Server) Model() *menu.Model { return s.model }
