// Package vector provides the exact similarity index, the position-to-key
// identifier map, and the published snapshot pair they form on disk.
package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Metric is the distance metric fixed at build time. Squared Euclidean is the
// only metric; it is recorded in the manifest so build and query can never
// silently disagree.
const Metric = "l2-squared"

const flatIndexMagic = uint32(0x4b4f5458) // "KOTX"

// Hit is a single similarity search match: the insertion position of the
// vector and its distance to the query.
type Hit struct {
	Position int
	Distance float32
}

// FlatIndex is an exact brute-force similarity index over fixed-dimension
// vectors. Positions are assigned sequentially at insertion time and never
// change. A FlatIndex is mutable while being built; once published inside a
// Snapshot it is only read.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &FlatIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Dimensions returns the fixed vector dimension.
func (ix *FlatIndex) Dimensions() int {
	return ix.dimensions
}

// Size returns the number of vectors in the index.
func (ix *FlatIndex) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Add appends vectors and returns their newly assigned positions, continuing
// at the current size. Only legal against a build-time instance; serving
// snapshots are replaced wholesale, never patched.
func (ix *FlatIndex) Add(vectors [][]float32) ([]int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	positions := make([]int, 0, len(vectors))
	for _, v := range vectors {
		if len(v) != ix.dimensions {
			return nil, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), ix.dimensions)
		}
		vec := make([]float32, ix.dimensions)
		copy(vec, v)
		positions = append(positions, len(ix.vectors))
		ix.vectors = append(ix.vectors, vec)
	}
	return positions, nil
}

// Search returns up to k hits ordered by ascending squared Euclidean
// distance, ties broken by lower position. An empty index returns nil for any
// query; k larger than the index returns everything.
func (ix *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), ix.dimensions)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if k <= 0 || len(ix.vectors) == 0 {
		return nil, nil
	}
	hits := make([]Hit, len(ix.vectors))
	for i, vec := range ix.vectors {
		hits[i] = Hit{Position: i, Distance: squaredL2(query, vec)}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].Position < hits[b].Position
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Save persists the index to path. Format: magic (4), dimensions (4),
// count (4), then count*dimensions little-endian float32s in position order.
func (ix *FlatIndex) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	for _, v := range []uint32{flatIndexMagic, uint32(ix.dimensions), uint32(len(ix.vectors))} {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, vec := range ix.vectors {
		if _, err := f.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// LoadFlatIndex reads an index previously written by Save.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var magic, dim, n uint32
	for _, p := range []*uint32{&magic, &dim, &n} {
		if err := binary.Read(f, binary.LittleEndian, p); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	if magic != flatIndexMagic {
		return nil, fmt.Errorf("not a vector index file: bad magic %#x", magic)
	}
	ix, err := NewFlatIndex(int(dim))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		ix.vectors = append(ix.vectors, bytesToFloat32Slice(buf))
	}
	return ix, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
