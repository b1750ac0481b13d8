package embedding

import (
	"fmt"
	"sync"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
}

// Get reorders the recency list, so concurrent hits on the query path must be
// safe under the race detector.
func TestEmbeddingCache_ConcurrentAccess(t *testing.T) {
	c := NewEmbeddingCache(64)
	for i := 0; i < 16; i++ {
		c.Set(fmt.Sprintf("key-%d", i), []float32{float32(i)})
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				key := fmt.Sprintf("key-%d", (g+i)%16)
				if v, ok := c.Get(key); ok && len(v) != 1 {
					t.Errorf("corrupt entry for %s: %v", key, v)
				}
				if i%100 == 0 {
					c.Set(fmt.Sprintf("key-%d", i%32), []float32{float32(i)})
				}
			}
		}(g)
	}
	wg.Wait()

	if v, ok := c.Get("key-0"); !ok || len(v) != 1 {
		t.Errorf("key-0 after concurrent access: %v, %v", v, ok)
	}
}
