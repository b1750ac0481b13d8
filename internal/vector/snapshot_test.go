package vector

import (
	"os"
	"sync"
	"testing"
)

func buildTestSnapshot(t *testing.T, root, buildID string, keys []int64) {
	t.Helper()
	ix, err := NewFlatIndex(2)
	if err != nil {
		t.Fatal(err)
	}
	vecs := make([][]float32, len(keys))
	for i := range keys {
		vecs[i] = []float32{float32(i), float32(keys[i])}
	}
	if _, err := ix.Add(vecs); err != nil {
		t.Fatal(err)
	}
	idMap := NewIdentifierMap()
	idMap.Append(keys...)
	if err := WriteSnapshot(root, buildID, ix, idMap); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshot_WritePublishLoad(t *testing.T) {
	root := t.TempDir()

	if _, err := LoadCurrent(root); !os.IsNotExist(err) {
		t.Fatalf("expected ErrNotExist before publish, got %v", err)
	}

	buildTestSnapshot(t, root, "build-a", []int64{10, 20, 30})
	if err := Publish(root, "build-a"); err != nil {
		t.Fatal(err)
	}

	snap, err := LoadCurrent(root)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Manifest.BuildID != "build-a" {
		t.Errorf("build id = %s, want build-a", snap.Manifest.BuildID)
	}
	if snap.Index.Size() != snap.IDMap.Len() {
		t.Errorf("index size %d != map size %d", snap.Index.Size(), snap.IDMap.Len())
	}
	for pos := 0; pos < snap.Index.Size(); pos++ {
		if _, ok := snap.IDMap.Resolve(pos); !ok {
			t.Errorf("position %d does not resolve", pos)
		}
	}
}

func TestPublish_Replace(t *testing.T) {
	root := t.TempDir()
	buildTestSnapshot(t, root, "build-a", []int64{1})
	buildTestSnapshot(t, root, "build-b", []int64{2, 3})
	if err := Publish(root, "build-a"); err != nil {
		t.Fatal(err)
	}
	if err := Publish(root, "build-b"); err != nil {
		t.Fatal(err)
	}
	snap, err := LoadCurrent(root)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Manifest.BuildID != "build-b" {
		t.Errorf("build id = %s, want build-b", snap.Manifest.BuildID)
	}
}

func TestPublish_Unstaged(t *testing.T) {
	if err := Publish(t.TempDir(), "missing"); err == nil {
		t.Error("expected error publishing an unstaged build")
	}
}

// Concurrent readers racing a publish must always load a matched pair from a
// single build, never an old index with a new map.
func TestPublish_AtomicUnderConcurrentReads(t *testing.T) {
	root := t.TempDir()
	// build-a has 2 entries all keyed in the 100s, build-b has 5 in the 200s.
	buildTestSnapshot(t, root, "build-a", []int64{100, 101})
	buildTestSnapshot(t, root, "build-b", []int64{200, 201, 202, 203, 204})
	if err := Publish(root, "build-a"); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, err := LoadCurrent(root)
				if err != nil {
					t.Errorf("read during publish: %v", err)
					return
				}
				if snap.Index.Size() != snap.IDMap.Len() {
					t.Errorf("torn pair: index %d, map %d", snap.Index.Size(), snap.IDMap.Len())
					return
				}
				wantGen := int64(100)
				if snap.Manifest.BuildID == "build-b" {
					wantGen = 200
				}
				for pos := 0; pos < snap.IDMap.Len(); pos++ {
					key, ok := snap.IDMap.Resolve(pos)
					if !ok || key < wantGen || key >= wantGen+100 {
						t.Errorf("build %s resolved key %d at pos %d", snap.Manifest.BuildID, key, pos)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		id := "build-a"
		if i%2 == 0 {
			id = "build-b"
		}
		if err := Publish(root, id); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestDiscardBuild(t *testing.T) {
	root := t.TempDir()
	buildTestSnapshot(t, root, "staged", []int64{1})
	if err := DiscardBuild(root, "staged"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(BuildDir(root, "staged")); !os.IsNotExist(err) {
		t.Error("staged build should be gone")
	}
}

func TestPruneBuilds(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"b1", "b2", "b3"} {
		buildTestSnapshot(t, root, id, []int64{1})
	}
	if err := Publish(root, "b3"); err != nil {
		t.Fatal(err)
	}
	if err := PruneBuilds(root, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCurrent(root); err != nil {
		t.Fatalf("current build must survive pruning: %v", err)
	}
}

func TestRegistry_Swap(t *testing.T) {
	r := NewRegistry()
	if r.Current() != nil {
		t.Fatal("fresh registry should have no snapshot")
	}
	s := &Snapshot{Manifest: Manifest{BuildID: "x"}}
	r.Swap(s)
	if got := r.Current(); got != s {
		t.Errorf("Current = %p, want %p", got, s)
	}
}
