package vector

import (
	"path/filepath"
	"testing"
)

func TestIdentifierMap_Resolve(t *testing.T) {
	m := NewIdentifierMap()
	m.Append(101, 202, 303)

	key, ok := m.Resolve(1)
	if !ok || key != 202 {
		t.Errorf("Resolve(1) = (%d, %v), want (202, true)", key, ok)
	}

	for _, pos := range []int{-1, 3, 1000} {
		if _, ok := m.Resolve(pos); ok {
			t.Errorf("Resolve(%d) should be absent", pos)
		}
	}
	if m.Len() != 3 {
		t.Errorf("Len = %d, want 3", m.Len())
	}
}

func TestIdentifierMap_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_map.json")
	m := NewIdentifierMap()
	m.Append(7, 8, 9)
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadIdentifierMap(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 3 {
		t.Fatalf("Len = %d, want 3", loaded.Len())
	}
	for pos, want := range []int64{7, 8, 9} {
		got, ok := loaded.Resolve(pos)
		if !ok || got != want {
			t.Errorf("Resolve(%d) = (%d, %v), want (%d, true)", pos, got, ok, want)
		}
	}
}

func TestLoadIdentifierMap_EmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_map.json")
	writeFileT(t, path, []byte("[]"))
	m, err := LoadIdentifierMap(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}
