package syncset

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := New()
	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Contains("a"))
	assert.Equal(t, 1, s.Len())

	s.Remove("a")
	assert.False(t, s.Contains("a"))
	assert.True(t, s.Add("a"))
}

func TestSetConcurrentAdd(t *testing.T) {
	s := New()
	var won int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Add("same") {
				atomic.AddInt32(&won, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, won)
}
