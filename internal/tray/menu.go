package tray

import (
	"fmt"
	"slices"

	"github.com/godbus/dbus/v5"

	"github.com/scopetray/scopetray/internal/menu"
)

// layoutNode is the wire representation of one menu node, marshaled by godbus
// as (ia{sv}av).
type layoutNode struct {
	ID         int32
	Properties map[string]dbus.Variant
	Children   []dbus.Variant
}

// groupProperties is one element of the GetGroupProperties reply, (ia{sv}).
type groupProperties struct {
	ID         int32
	Properties map[string]dbus.Variant
}

// menuAdapter is the exported com.canonical.dbusmenu object.
type menuAdapter struct {
	s *Server
}

// GetLayout returns the current revision and the subtree under parentID.
// parentID 0 names the synthetic root whose children are the top-level items
// in order. recursionDepth < 0 means unlimited, 0 returns no children.
func (a *menuAdapter) GetLayout(parentID, recursionDepth int32, propertyNames []string) (uint32, layoutNode, *dbus.Error) {
	items, rootIDs, revision := a.s.model.Snapshot()
	node := buildLayout(items, rootIDs, parentID, recursionDepth, propertyNames)
	return revision, node, nil
}

// GetGroupProperties fetches properties for several items at once. Ids not
// present in the model are silently omitted.
func (a *menuAdapter) GetGroupProperties(ids []int32, propertyNames []string) ([]groupProperties, *dbus.Error) {
	items, _, _ := a.s.model.Snapshot()
	out := make([]groupProperties, 0, len(ids))
	for _, id := range ids {
		it, ok := items[id]
		if !ok {
			continue
		}
		out = append(out, groupProperties{ID: id, Properties: itemProperties(it, propertyNames)})
	}
	return out, nil
}

// GetProperty fetches a single property. An unknown property name is an
// invalid-argument protocol error.
func (a *menuAdapter) GetProperty(id int32, name string) (dbus.Variant, *dbus.Error) {
	var props map[string]dbus.Variant
	if it, ok := a.s.model.Item(id); ok {
		props = itemProperties(it, nil)
	}
	v, ok := props[name]
	if !ok {
		return dbus.Variant{}, dbus.NewError(
			"org.freedesktop.DBus.Error.InvalidArgs",
			[]any{fmt.Sprintf("unknown property: %s", name)},
		)
	}
	return v, nil
}

// Event delivers a host interaction. Clicks on enabled items with an action
// dispatch that action; everything else is silently ignored.
func (a *menuAdapter) Event(id int32, eventID string, data dbus.Variant, timestamp uint32) *dbus.Error {
	if eventID != "clicked" {
		return nil
	}
	it, ok := a.s.model.Item(id)
	if !ok || !it.Enabled || it.Action.Kind == menu.ActionNone {
		return nil
	}
	// Dispatch off the bus goroutine; actions may block on the supervisor.
	go a.s.actionFunc()(it.Action)
	return nil
}

// AboutToShow always reports that no update is needed: the layout is rebuilt
// eagerly on state change, never lazily on menu open.
func (a *menuAdapter) AboutToShow(id int32) (bool, *dbus.Error) {
	return false, nil
}

func buildLayout(items map[int32]menu.Item, rootIDs []int32, id, depth int32, propertyNames []string) layoutNode {
	node := layoutNode{ID: id, Properties: map[string]dbus.Variant{}, Children: []dbus.Variant{}}

	var childIDs []int32
	if id == 0 {
		node.Properties["children-display"] = dbus.MakeVariant("submenu")
		childIDs = rootIDs
	} else {
		it, ok := items[id]
		if !ok {
			return node
		}
		node.Properties = itemProperties(it, propertyNames)
		childIDs = it.Children
	}

	if depth == 0 {
		return node
	}
	next := depth - 1
	if depth < 0 {
		next = -1
	}
	for _, childID := range childIDs {
		child := buildLayout(items, rootIDs, childID, next, propertyNames)
		node.Children = append(node.Children, dbus.MakeVariant(child))
	}
	return node
}

// itemProperties converts a model item to dbusmenu properties, filtered to
// propertyNames when the filter is non-empty.
func itemProperties(it menu.Item, propertyNames []string) map[string]dbus.Variant {
	props := make(map[string]dbus.Variant, 6)
	if it.IsSeparator() {
		props["type"] = dbus.MakeVariant("separator")
	} else {
		props["label"] = dbus.MakeVariant(it.Label)
		props["enabled"] = dbus.MakeVariant(it.Enabled)
		switch it.Toggle {
		case menu.ToggleRadio:
			props["toggle-type"] = dbus.MakeVariant("radio")
			props["toggle-state"] = dbus.MakeVariant(toggleState(it.ToggleState))
		case menu.ToggleCheckmark:
			props["toggle-type"] = dbus.MakeVariant("checkmark")
			props["toggle-state"] = dbus.MakeVariant(toggleState(it.ToggleState))
		}
		if len(it.Children) > 0 {
			props["children-display"] = dbus.MakeVariant("submenu")
		}
	}
	if len(propertyNames) == 0 {
		return props
	}
	filtered := make(map[string]dbus.Variant, len(propertyNames))
	for name, v := range props {
		if slices.Contains(propertyNames, name) {
			filtered[name] = v
		}
	}
	return filtered
}

func toggleState(on bool) int32 {
	if on {
		return 1
	}
	return 0
}

const menuIntrospectXML = `
<node>
  <interface name="com.canonical.dbusmenu">
    <property name="Version" type="u" access="read"/>
    <property name="Status" type="s" access="read"/>
    <property name="TextDirection" type="s" access="read"/>
    <property name="IconThemePath" type="as" access="read"/>
    <method name="GetLayout">
      <arg name="parentId" type="i" direction="in"/>
      <arg name="recursionDepth" type="i" direction="in"/>
      <arg name="propertyNames" type="as" direction="in"/>
      <arg name="revision" type="u" direction="out"/>
      <arg name="layout" type="(ia{sv}av)" direction="out"/>
    </method>
    <method name="GetGroupProperties">
      <arg name="ids" type="ai" direction="in"/>
      <arg name="propertyNames" type="as" direction="in"/>
      <arg name="properties" type="a(ia{sv})" direction="out"/>
    </method>
    <method name="GetProperty">
      <arg name="id" type="i" direction="in"/>
      <arg name="name" type="s" direction="in"/>
      <arg name="value" type="v" direction="out"/>
    </method>
    <method name="Event">
      <arg name="id" type="i" direction="in"/>
      <arg name="eventId" type="s" direction="in"/>
      <arg name="data" type="v" direction="in"/>
      <arg name="timestamp" type="u" direction="in"/>
    </method>
    <method name="AboutToShow">
      <arg name="id" type="i" direction="in"/>
      <arg name="needUpdate" type="b" direction="out"/>
    </method>
    <signal name="ItemsPropertiesUpdated">
      <arg name="updatedProps" type="a(ia{sv})"/>
      <arg name="removedProps" type="a(ias)"/>
    </signal>
    <signal name="LayoutUpdated">
      <arg name="revision" type="u"/>
      <arg name="parent" type="i"/>
    </signal>
  </interface>
</node>`
