package locking

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameKey(t *testing.T) {
	locks := NewKeyed()

	var (
		wg      sync.WaitGroup
		current int
		max     int
		mu      sync.Mutex
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("doc-1")
			defer unlock()

			mu.Lock()
			current++
			if current > max {
				max = current
			}
			mu.Unlock()

			mu.Lock()
			current--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, max, "at most one holder per key at a time")
}

func TestLockOverlappingKeySetsDoNotDeadlock(t *testing.T) {
	locks := NewKeyed()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("a", "b")
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := locks.Lock("b", "a")
			unlock()
		}()
	}
	wg.Wait()
}

func TestLockDropsIdleEntries(t *testing.T) {
	locks := NewKeyed()

	unlock := locks.Lock("a", "b", "a")
	unlock()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.entries)
}
