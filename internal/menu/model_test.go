package menu

import (
	"testing"
)

func TestModelRevisionStartsAtOne(t *testing.T) {
	m := NewModel()
	if rev := m.Revision(); rev != 1 {
		t.Fatalf("fresh revision = %d, want 1", rev)
	}
}

func TestModelRebuildBumpsRevisionOnChange(t *testing.T) {
	m := NewModel()
	s := defaultSettings()

	changed, rev := m.Rebuild(s, false)
	if !changed || rev != 2 {
		t.Fatalf("first rebuild: changed=%v rev=%d, want true 2", changed, rev)
	}

	changed, rev = m.Rebuild(s, true)
	if !changed || rev != 3 {
		t.Fatalf("running flip: changed=%v rev=%d, want true 3", changed, rev)
	}
}

func TestModelRebuildIdenticalKeepsRevision(t *testing.T) {
	m := NewModel()
	s := defaultSettings()
	_, rev := m.Rebuild(s, false)

	changed, after := m.Rebuild(s, false)
	if changed {
		t.Fatalf("identical rebuild reported a change")
	}
	if after != rev {
		t.Fatalf("identical rebuild moved revision %d -> %d", rev, after)
	}
}

func TestModelRebuildSettingsChangeBumpsOnce(t *testing.T) {
	m := NewModel()
	s := defaultSettings()
	_, before := m.Rebuild(s, false)

	s.HDR = !s.HDR
	changed, after := m.Rebuild(s, false)
	if !changed || after != before+1 {
		t.Fatalf("settings change: changed=%v rev %d -> %d, want +1", changed, before, after)
	}
}

func TestModelSnapshotIsACopy(t *testing.T) {
	m := NewModel()
	m.Rebuild(defaultSettings(), false)

	items, rootIDs, _ := m.Snapshot()
	delete(items, rootIDs[0])
	rootIDs[0] = -1

	if _, ok := m.Item(idStart); !ok {
		t.Fatalf("mutating a snapshot leaked into the model")
	}
	if got := m.RootIDs()[0]; got != idStart {
		t.Fatalf("root id mutated through snapshot: %d", got)
	}
}
