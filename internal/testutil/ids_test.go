package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceIDs_Order(t *testing.T) {
	gen := NewSequenceIDs("chain")
	assert.Equal(t, "chain-1", gen.NewID())
	assert.Equal(t, "chain-2", gen.NewID())
	assert.Equal(t, "id-1", NewSequenceIDs("").NewID())
}

func TestSequenceIDs_UniqueUnderConcurrency(t *testing.T) {
	gen := NewSequenceIDs("x")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.NewID()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 100)
}
