package menu

import (
	"slices"
	"sync"

	"github.com/scopetray/scopetray/internal/config"
)

// Model holds the current menu tree and its revision. The tree is always
// replaced as a whole; the revision is bumped by exactly one whenever a
// rebuild produces a different tree and survives every rebuild while the
// server is alive.
type Model struct {
	mu       sync.Mutex
	items    map[int32]Item
	rootIDs  []int32
	revision uint32
}

// NewModel returns a model holding an empty tree at revision 1.
func NewModel() *Model {
	return &Model{items: map[int32]Item{}, revision: 1}
}

// Rebuild replaces the tree from a configuration snapshot and the running
// flag. It reports whether the tree changed and the revision now in effect.
func (m *Model) Rebuild(s config.Settings, running bool) (changed bool, revision uint32) {
	items, rootIDs := Build(s, running)

	m.mu.Lock()
	defer m.mu.Unlock()
	if treesEqual(m.items, items, m.rootIDs, rootIDs) {
		return false, m.revision
	}
	m.items = items
	m.rootIDs = rootIDs
	m.revision++
	return true, m.revision
}

// Revision returns the current revision.
func (m *Model) Revision() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revision
}

// Item looks up an item by id. Id 0 never resolves: it names the synthetic root.
func (m *Model) Item(id int32) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	return it, ok
}

// RootIDs returns the ordered ids of the root's children.
func (m *Model) RootIDs() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.rootIDs)
}

// Snapshot returns a copy of the whole tree for protocol serialization.
func (m *Model) Snapshot() (map[int32]Item, []int32, uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make(map[int32]Item, len(m.items))
	for id, it := range m.items {
		items[id] = it
	}
	return items, slices.Clone(m.rootIDs), m.revision
}
