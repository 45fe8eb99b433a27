package queue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/halcyonfs/braid/queue"
)

func TestFIFOOrder(t *testing.T) {
	assert := assert.New(t)

	q := queue.New[int](4)
	for i := 0; i < 8; i++ {
		assert.NoError(q.Push(i))
	}
	assert.Equal(8, q.Len())

	for i := 0; i < 8; i++ {
		v, ok := q.TryPop()
		assert.True(ok)
		assert.Equal(i, v)
	}
	_, ok := q.TryPop()
	assert.False(ok)
}

func TestPopBlocksUntilPush(t *testing.T) {
	assert := assert.New(t)

	q := queue.New[string](1)
	got := make(chan string, 1)
	go func() {
		v, ok := q.Pop()
		assert.True(ok)
		got <- v
	}()

	// Give the popper time to block.
	time.Sleep(10 * time.Millisecond)
	assert.NoError(q.Push("work"))

	select {
	case v := <-got:
		assert.Equal("work", v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestCloseWakesWaiters(t *testing.T) {
	assert := assert.New(t)

	q := queue.New[int](1)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop()
			assert.False(ok)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()

	assert.ErrorIs(q.Push(1), queue.ErrClosed)
}

func TestCloseDrainsPendingItems(t *testing.T) {
	assert := assert.New(t)

	q := queue.New[int](2)
	assert.NoError(q.Push(1))
	assert.NoError(q.Push(2))
	q.Close()

	v, ok := q.Pop()
	assert.True(ok)
	assert.Equal(1, v)
	v, ok = q.Pop()
	assert.True(ok)
	assert.Equal(2, v)
	_, ok = q.Pop()
	assert.False(ok)
}

func TestClearReturnsDropped(t *testing.T) {
	assert := assert.New(t)

	q := queue.New[int](2)
	assert.NoError(q.Push(7))
	assert.NoError(q.Push(8))

	dropped := q.Clear()
	assert.Equal([]int{7, 8}, dropped)
	assert.Equal(0, q.Len())
}
