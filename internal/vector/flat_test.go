package vector

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFlatIndex_Add(t *testing.T) {
	ix, err := NewFlatIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	positions, err := ix.Add([][]float32{{1, 0, 0}, {0, 1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 2 || positions[0] != 0 || positions[1] != 1 {
		t.Errorf("positions = %v, want [0 1]", positions)
	}

	more, err := ix.Add([][]float32{{0, 0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if more[0] != 2 {
		t.Errorf("appended position = %d, want 2", more[0])
	}
	if ix.Size() != 3 {
		t.Errorf("Size = %d, want 3", ix.Size())
	}

	if _, err := ix.Add([][]float32{{1, 2}}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestFlatIndex_Search(t *testing.T) {
	ix, _ := NewFlatIndex(2)
	if _, err := ix.Add([][]float32{{0, 0}, {1, 0}, {3, 0}}); err != nil {
		t.Fatal(err)
	}

	t.Run("nearest first", func(t *testing.T) {
		hits, err := ix.Search([]float32{0.9, 0}, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 3 {
			t.Fatalf("got %d hits, want 3", len(hits))
		}
		if hits[0].Position != 1 || hits[1].Position != 0 || hits[2].Position != 2 {
			t.Errorf("order = %d,%d,%d, want 1,0,2", hits[0].Position, hits[1].Position, hits[2].Position)
		}
	})

	t.Run("k bounds results", func(t *testing.T) {
		hits, _ := ix.Search([]float32{0, 0}, 2)
		if len(hits) != 2 {
			t.Errorf("got %d hits, want 2", len(hits))
		}
	})

	t.Run("k larger than index returns all", func(t *testing.T) {
		hits, _ := ix.Search([]float32{0, 0}, 50)
		if len(hits) != 3 {
			t.Errorf("got %d hits, want 3", len(hits))
		}
	})

	t.Run("ties broken by lower position", func(t *testing.T) {
		tied, _ := NewFlatIndex(2)
		if _, err := tied.Add([][]float32{{1, 0}, {-1, 0}, {1, 0}}); err != nil {
			t.Fatal(err)
		}
		hits, _ := tied.Search([]float32{0, 0}, 3)
		if hits[0].Position != 0 || hits[1].Position != 1 || hits[2].Position != 2 {
			t.Errorf("tie order = %d,%d,%d, want 0,1,2", hits[0].Position, hits[1].Position, hits[2].Position)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		if _, err := ix.Search([]float32{1, 2, 3}, 1); err == nil {
			t.Error("expected dimension mismatch error")
		}
	})
}

func TestFlatIndex_SearchEmpty(t *testing.T) {
	ix, _ := NewFlatIndex(4)
	hits, err := ix.Search([]float32{1, 2, 3, 4}, 10)
	if err != nil {
		t.Fatalf("empty index search should not error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits from empty index, want 0", len(hits))
	}
}

func TestFlatIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	ix, _ := NewFlatIndex(2)
	if _, err := ix.Add([][]float32{{1.5, -2.5}, {0.25, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadFlatIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Dimensions() != 2 || loaded.Size() != 2 {
		t.Fatalf("loaded shape = (%d, %d), want (2, 2)", loaded.Dimensions(), loaded.Size())
	}
	hits, err := loaded.Search([]float32{1.5, -2.5}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Position != 0 || hits[0].Distance != 0 {
		t.Errorf("self search hit = %+v, want position 0 distance 0", hits[0])
	}
}

func TestLoadFlatIndex_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	writeFileT(t, path, []byte("not an index"))
	if _, err := LoadFlatIndex(path); err == nil {
		t.Error("expected error for corrupt file")
	}
}

func writeFileT(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}
