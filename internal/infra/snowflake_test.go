package infra

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnowflakeOrdering(t *testing.T) {
	gen := NewSnowflakeGenerator(1)

	prev := gen.Generate()
	for i := 0; i < 1000; i++ {
		id := gen.Generate()
		assert.Greater(t, id, prev, "ids are strictly increasing")
		prev = id
	}
}

func TestSnowflakeUniqueUnderConcurrency(t *testing.T) {
	gen := NewSnowflakeGenerator(1)

	const workers = 8
	const perWorker = 500

	var (
		mu  sync.Mutex
		ids = make(map[int64]bool, workers*perWorker)
		wg  sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, gen.Generate())
			}
			mu.Lock()
			for _, id := range local {
				assert.False(t, ids[id], "duplicate id")
				ids[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, workers*perWorker)
}

func TestExtractTimestamp(t *testing.T) {
	gen := NewSnowflakeGenerator(1)

	before := time.Now().Add(-time.Second)
	id := gen.Generate()
	after := time.Now().Add(time.Second)

	ts := gen.ExtractTimestamp(id)
	assert.True(t, ts.After(before) && ts.Before(after))
}
