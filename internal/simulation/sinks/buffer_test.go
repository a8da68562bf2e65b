package sinks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBuffer_FIFO(t *testing.T) {
	b := NewRingBuffer[int](4)
	for i := range 3 {
		assert.False(t, b.Enqueue(i))
	}
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int{0, 1}, b.DequeueBatch(2))
	assert.Equal(t, []int{2}, b.DequeueBatch(10))
	assert.Nil(t, b.DequeueBatch(1))
}

func TestRingBuffer_OverflowDropsOldest(t *testing.T) {
	b := NewRingBuffer[int](3)
	for i := range 5 {
		b.Enqueue(i)
	}
	assert.Equal(t, int64(2), b.Dropped())
	items, _ := b.Peek(3)
	assert.Equal(t, []int{2, 3, 4}, items)
}

func TestRingBuffer_PeekThenCommit(t *testing.T) {
	b := NewRingBuffer[string](3)
	b.Enqueue("a")
	b.Enqueue("b")
	b.Enqueue("c")

	batch, _ := b.Peek(2)
	assert.Equal(t, []string{"a", "b"}, batch)
	assert.Equal(t, 3, b.Len(), "peek does not remove")

	// only the first was delivered
	_, pos := b.Peek(1)
	b.Commit(pos)
	rest, _ := b.Peek(5)
	assert.Equal(t, []string{"b", "c"}, rest)

	// wraps around the backing array
	b.Enqueue("d")
	assert.Equal(t, []string{"b", "c", "d"}, b.DequeueBatch(3))
	assert.Equal(t, 0, b.Len())
}

func TestRingBuffer_CommitAfterOverflow(t *testing.T) {
	b := NewRingBuffer[string](2)
	b.Enqueue("a")
	b.Enqueue("b")

	batch, pos := b.Peek(2)
	assert.Equal(t, []string{"a", "b"}, batch)

	// "a" is evicted while the batch is in flight
	b.Enqueue("c")
	b.Commit(pos)

	rest, _ := b.Peek(2)
	assert.Equal(t, []string{"c"}, rest, "commit must not remove the undelivered item")
}

func TestRingBuffer_DefaultCapacity(t *testing.T) {
	b := NewRingBuffer[int](0)
	for i := range defaultCapacity {
		b.Enqueue(i)
	}
	assert.Equal(t, int64(0), b.Dropped())
	b.Enqueue(-1)
	assert.Equal(t, int64(1), b.Dropped())
}

func TestRingBuffer_Concurrent(t *testing.T) {
	b := NewRingBuffer[int](1000)
	var wg sync.WaitGroup
	for w := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				b.Enqueue(w*100 + i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, b.Len())
}
