// Package menu builds the tray context menu as pure data.
//
// Toggle state is intentionally represented twice: as the structural
// toggle-type/toggle-state properties and as a glyph prefix embedded in the
// label. Some status-bar hosts render only one of the two, so both are kept
// and pinned to each other by tests.
package menu

import (
	"fmt"
	"slices"

	"github.com/scopetray/scopetray/internal/config"
)

// ActionKind tags the command a menu item triggers.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionStart
	ActionStop
	ActionSetResolution // Value is "<width>x<height>"
	ActionSetFilter     // Value is the filter name
	ActionToggle        // Value is one of the Toggle* names below
	ActionOpenSettings
	ActionOpenLogs
	ActionQuit
)

// Toggle names carried in Action.Value for ActionToggle.
const (
	ToggleFullscreen   = "fullscreen"
	ToggleHDR          = "hdr"
	ToggleAdaptiveSync = "adaptive_sync"
	ToggleAutoRestart  = "auto_restart"
)

// Action is the command attached to an item. Items stay serializable: no
// closures are captured, dispatch happens on the tag.
type Action struct {
	Kind  ActionKind
	Value string
}

// ToggleKind mirrors the dbusmenu toggle-type property.
type ToggleKind int

const (
	ToggleNone ToggleKind = iota
	ToggleRadio
	ToggleCheckmark
)

// SeparatorLabel marks a non-interactive divider item.
const SeparatorLabel = "separator"

// Item is one node of the menu tree. Children holds ordered child ids and is
// nil for leaves.
type Item struct {
	ID          int32
	Label       string
	Action      Action
	Enabled     bool
	Toggle      ToggleKind
	ToggleState bool
	Children    []int32
}

// IsSeparator reports whether the item is a divider.
func (it Item) IsSeparator() bool { return it.Label == SeparatorLabel }

// Item ids are partitioned by section so unrelated rebuild regions never
// collide. Id 0 is reserved for the synthetic root.
const (
	idStart        int32 = 101
	idStop         int32 = 102
	idSepLifecycle int32 = 110

	idResolutionMenu  int32 = 200
	idResolutionFirst int32 = 201

	idFilterMenu  int32 = 300
	idFilterFirst int32 = 301

	idToggleFullscreen   int32 = 401
	idToggleHDR          int32 = 402
	idToggleAdaptiveSync int32 = 403
	idToggleAutoRestart  int32 = 404
	idSepToggles         int32 = 410

	idSettings int32 = 901
	idLogs     int32 = 902
	idSepQuit  int32 = 910
	idQuit     int32 = 903
)

// Glyphs prefixed to toggle labels. They redundantly encode toggle-state for
// hosts that ignore the structural properties.
const (
	glyphRadioOn  = "● "
	glyphRadioOff = "○ "
	glyphCheckOn  = "☑ "
	glyphCheckOff = "☐ "
)

func radioLabel(name string, on bool) string {
	if on {
		return glyphRadioOn + name
	}
	return glyphRadioOff + name
}

func checkLabel(name string, on bool) string {
	if on {
		return glyphCheckOn + name
	}
	return glyphCheckOff + name
}

// Build turns a configuration snapshot and the running flag into a complete
// replacement menu tree. It is pure and deterministic: equal inputs produce
// identical trees. The snapshot is never mutated.
func Build(s config.Settings, running bool) (map[int32]Item, []int32) {
	items := make(map[int32]Item, 24)
	add := func(it Item) { items[it.ID] = it }

	add(Item{ID: idStart, Label: "Start Gamescope", Action: Action{Kind: ActionStart}, Enabled: !running})
	add(Item{ID: idStop, Label: "Stop Gamescope", Action: Action{Kind: ActionStop}, Enabled: running})
	add(Item{ID: idSepLifecycle, Label: SeparatorLabel, Enabled: true})

	resChildren := make([]int32, 0, len(config.ResolutionPresets()))
	for i, p := range config.ResolutionPresets() {
		id := idResolutionFirst + int32(i)
		value := fmt.Sprintf("%dx%d", p.Width, p.Height)
		on := s.RenderWidth == p.Width && s.RenderHeight == p.Height
		add(Item{
			ID:          id,
			Label:       radioLabel(p.Name, on),
			Action:      Action{Kind: ActionSetResolution, Value: value},
			Enabled:     true,
			Toggle:      ToggleRadio,
			ToggleState: on,
		})
		resChildren = append(resChildren, id)
	}
	add(Item{ID: idResolutionMenu, Label: "Resolution", Enabled: true, Children: resChildren})

	filterChildren := make([]int32, 0, len(config.Filters()))
	filterNames := map[string]string{
		config.FilterFSR:     "FSR",
		config.FilterNearest: "Nearest",
		config.FilterLinear:  "Linear",
	}
	for i, f := range config.Filters() {
		id := idFilterFirst + int32(i)
		on := s.Filter == f
		add(Item{
			ID:          id,
			Label:       radioLabel(filterNames[f], on),
			Action:      Action{Kind: ActionSetFilter, Value: f},
			Enabled:     true,
			Toggle:      ToggleRadio,
			ToggleState: on,
		})
		filterChildren = append(filterChildren, id)
	}
	add(Item{ID: idFilterMenu, Label: "Filter", Enabled: true, Children: filterChildren})

	toggle := func(id int32, name, value string, on bool) {
		add(Item{
			ID:          id,
			Label:       checkLabel(name, on),
			Action:      Action{Kind: ActionToggle, Value: value},
			Enabled:     true,
			Toggle:      ToggleCheckmark,
			ToggleState: on,
		})
	}
	toggle(idToggleFullscreen, "Fullscreen", ToggleFullscreen, s.Fullscreen)
	toggle(idToggleHDR, "HDR", ToggleHDR, s.HDR)
	toggle(idToggleAdaptiveSync, "Adaptive Sync", ToggleAdaptiveSync, s.AdaptiveSync)
	toggle(idToggleAutoRestart, "Auto-restart on crash", ToggleAutoRestart, s.AutoRestart)
	add(Item{ID: idSepToggles, Label: SeparatorLabel, Enabled: true})

	add(Item{ID: idSettings, Label: "Settings...", Action: Action{Kind: ActionOpenSettings}, Enabled: true})
	add(Item{ID: idLogs, Label: "View Logs...", Action: Action{Kind: ActionOpenLogs}, Enabled: true})
	add(Item{ID: idSepQuit, Label: SeparatorLabel, Enabled: true})
	add(Item{ID: idQuit, Label: "Quit", Action: Action{Kind: ActionQuit}, Enabled: true})

	rootIDs := []int32{
		idStart, idStop, idSepLifecycle,
		idResolutionMenu, idFilterMenu,
		idToggleFullscreen, idToggleHDR, idToggleAdaptiveSync, idToggleAutoRestart,
		idSepToggles,
		idSettings, idLogs, idSepQuit,
		idQuit,
	}
	return items, rootIDs
}

func itemEqual(a, b Item) bool {
	return a.ID == b.ID &&
		a.Label == b.Label &&
		a.Action == b.Action &&
		a.Enabled == b.Enabled &&
		a.Toggle == b.Toggle &&
		a.ToggleState == b.ToggleState &&
		slices.Equal(a.Children, b.Children)
}

func treesEqual(a, b map[int32]Item, ra, rb []int32) bool {
	if !slices.Equal(ra, rb) || len(a) != len(b) {
		return false
	}
	for id, it := range a {
		other, ok := b[id]
		if !ok || !itemEqual(it, other) {
			return false
		}
	}
	return true
}
