package tray

import (
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/scopetray/scopetray/internal/config"
	"github.com/scopetray/scopetray/internal/menu"
)

// newOfflineServer builds a server with a populated model and no bus
// connection. The protocol adapters are exercised directly.
func newOfflineServer(t *testing.T, running bool, onAction func(menu.Action)) *Server {
	t.Helper()
	model := menu.NewModel()
	model.Rebuild(config.Default().Settings, running)
	return NewServer(model, onAction, nil)
}

func findChild(t *testing.T, node layoutNode, label string) (layoutNode, bool) {
	t.Helper()
	for _, v := range node.Children {
		child, ok := v.Value().(layoutNode)
		if !ok {
			t.Fatalf("child variant holds %T, want layoutNode", v.Value())
		}
		if lv, ok := child.Properties["label"]; ok && lv.Value() == label {
			return child, true
		}
		if sub, ok := findChild(t, child, label); ok {
			return sub, true
		}
	}
	return layoutNode{}, false
}

func TestGetLayoutRoot(t *testing.T) {
	s := newOfflineServer(t, false, nil)
	a := &menuAdapter{s: s}

	revision, node, derr := a.GetLayout(0, -1, nil)
	if derr != nil {
		t.Fatalf("GetLayout: %v", derr)
	}
	if revision != s.model.Revision() {
		t.Fatalf("revision = %d, want %d", revision, s.model.Revision())
	}
	if node.ID != 0 {
		t.Fatalf("root id = %d, want 0", node.ID)
	}
	if got := node.Properties["children-display"].Value(); got != "submenu" {
		t.Fatalf("root children-display = %v", got)
	}

	rootIDs := s.model.RootIDs()
	if len(node.Children) != len(rootIDs) {
		t.Fatalf("root has %d children, want %d", len(node.Children), len(rootIDs))
	}
	for i, v := range node.Children {
		child := v.Value().(layoutNode)
		if child.ID != rootIDs[i] {
			t.Fatalf("child[%d].ID = %d, want %d", i, child.ID, rootIDs[i])
		}
	}

	if _, ok := findChild(t, node, "Start Gamescope"); !ok {
		t.Fatalf("start entry missing from recursive layout")
	}
}

func TestGetLayoutDepthZeroOmitsChildren(t *testing.T) {
	s := newOfflineServer(t, false, nil)
	a := &menuAdapter{s: s}

	_, node, derr := a.GetLayout(0, 0, nil)
	if derr != nil {
		t.Fatalf("GetLayout: %v", derr)
	}
	if len(node.Children) != 0 {
		t.Fatalf("depth 0 returned %d children", len(node.Children))
	}
}

func TestGetLayoutUnknownParentIsEmptyNode(t *testing.T) {
	s := newOfflineServer(t, false, nil)
	a := &menuAdapter{s: s}

	_, node, derr := a.GetLayout(9999, -1, nil)
	if derr != nil {
		t.Fatalf("GetLayout: %v", derr)
	}
	if node.ID != 9999 || len(node.Children) != 0 || len(node.Properties) != 0 {
		t.Fatalf("unknown parent produced %+v", node)
	}
}

func TestGetLayoutPropertyFilter(t *testing.T) {
	s := newOfflineServer(t, false, nil)
	a := &menuAdapter{s: s}

	_, node, _ := a.GetLayout(0, 1, []string{"label"})
	for _, v := range node.Children {
		child := v.Value().(layoutNode)
		for name := range child.Properties {
			if name != "label" {
				t.Fatalf("filtered layout leaked property %q", name)
			}
		}
	}
}

func TestGetGroupPropertiesOmitsUnknownIDs(t *testing.T) {
	s := newOfflineServer(t, false, nil)
	a := &menuAdapter{s: s}

	ids := append(s.model.RootIDs()[:2], 4242)
	out, derr := a.GetGroupProperties(ids, nil)
	if derr != nil {
		t.Fatalf("GetGroupProperties: %v", derr)
	}
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	for _, gp := range out {
		if gp.ID == 4242 {
			t.Fatalf("unknown id included in reply")
		}
	}
}

func TestGetPropertyUnknownNameIsInvalidArgs(t *testing.T) {
	s := newOfflineServer(t, false, nil)
	a := &menuAdapter{s: s}

	id := s.model.RootIDs()[0]
	if _, derr := a.GetProperty(id, "label"); derr != nil {
		t.Fatalf("label lookup failed: %v", derr)
	}
	_, derr := a.GetProperty(id, "no-such-property")
	if derr == nil {
		t.Fatalf("unknown property returned no error")
	}
	if derr.Name != "org.freedesktop.DBus.Error.InvalidArgs" {
		t.Fatalf("error name = %q", derr.Name)
	}
}

func TestEventClickDispatchesAction(t *testing.T) {
	var mu sync.Mutex
	var got []menu.Action
	done := make(chan struct{}, 1)
	s := newOfflineServer(t, false, func(a menu.Action) {
		mu.Lock()
		got = append(got, a)
		mu.Unlock()
		done <- struct{}{}
	})
	a := &menuAdapter{s: s}

	startID := s.model.RootIDs()[0]
	if derr := a.Event(startID, "clicked", dbus.MakeVariant(""), 0); derr != nil {
		t.Fatalf("Event: %v", derr)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("action not dispatched")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Kind != menu.ActionStart {
		t.Fatalf("dispatched %+v, want one start action", got)
	}
}

func TestEventIgnoresDisabledUnknownAndNonClick(t *testing.T) {
	s := newOfflineServer(t, false, func(menu.Action) {
		t.Errorf("action dispatched for an ignorable event")
	})
	a := &menuAdapter{s: s}

	// Stop is disabled while the compositor is stopped.
	stopID := s.model.RootIDs()[1]
	if derr := a.Event(stopID, "clicked", dbus.MakeVariant(""), 0); derr != nil {
		t.Fatalf("disabled click errored: %v", derr)
	}
	if derr := a.Event(4242, "clicked", dbus.MakeVariant(""), 0); derr != nil {
		t.Fatalf("unknown id errored: %v", derr)
	}
	startID := s.model.RootIDs()[0]
	if derr := a.Event(startID, "hovered", dbus.MakeVariant(""), 0); derr != nil {
		t.Fatalf("hover errored: %v", derr)
	}
	time.Sleep(100 * time.Millisecond)
}

func TestAboutToShowNeverNeedsUpdate(t *testing.T) {
	s := newOfflineServer(t, false, nil)
	a := &menuAdapter{s: s}
	need, derr := a.AboutToShow(0)
	if derr != nil {
		t.Fatalf("AboutToShow: %v", derr)
	}
	if need {
		t.Fatalf("AboutToShow asked the host to refetch")
	}
}

func TestItemPropertiesSeparator(t *testing.T) {
	props := itemProperties(menu.Item{Label: menu.SeparatorLabel}, nil)
	if props["type"].Value() != "separator" {
		t.Fatalf("separator props = %v", props)
	}
	if _, ok := props["label"]; ok {
		t.Fatalf("separator carries a label property")
	}
}

func TestItemPropertiesToggleTypes(t *testing.T) {
	radio := itemProperties(menu.Item{Label: "r", Enabled: true, Toggle: menu.ToggleRadio, ToggleState: true}, nil)
	if radio["toggle-type"].Value() != "radio" || radio["toggle-state"].Value() != int32(1) {
		t.Fatalf("radio props = %v", radio)
	}
	check := itemProperties(menu.Item{Label: "c", Enabled: true, Toggle: menu.ToggleCheckmark}, nil)
	if check["toggle-type"].Value() != "checkmark" || check["toggle-state"].Value() != int32(0) {
		t.Fatalf("checkmark props = %v", check)
	}
}

func TestStatusTransitionsOffline(t *testing.T) {
	s := newOfflineServer(t, false, nil)
	if s.CurrentStatus() != StatusPassive {
		t.Fatalf("initial status = %q", s.CurrentStatus())
	}
	s.SetStatus(StatusActive)
	if s.CurrentStatus() != StatusActive {
		t.Fatalf("status after SetStatus = %q", s.CurrentStatus())
	}
	// No connection: signal emission is skipped, state still updates.
	s.SetStatus(StatusActive)
	s.LayoutUpdated(5)
}

func TestBusNameShape(t *testing.T) {
	name := BusName()
	const prefix = "org.kde.StatusNotifierItem-"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		t.Fatalf("bus name = %q", name)
	}
}
