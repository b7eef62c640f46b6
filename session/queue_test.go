package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()
	q.Push([]byte("a"))
	q.Push([]byte("b"))
	q.Push([]byte("c"))
	require.Equal(t, 3, q.Depth())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, want, string(got))
	}
	require.Equal(t, 0, q.Depth())
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	done := make(chan []byte, 1)
	go func() {
		msg, ok := q.Pop()
		require.True(t, ok)
		done <- msg
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push([]byte("late"))

	select {
	case msg := <-done:
		require.Equal(t, "late", string(msg))
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestQueueCloseUnblocksConsumer(t *testing.T) {
	q := NewQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Close")
	}
}

func TestQueuePushAfterCloseIsDiscarded(t *testing.T) {
	q := NewQueue()
	q.Close()
	q.Push([]byte("dropped"))
	_, ok := q.Pop()
	require.False(t, ok)
}

func TestSubscriptionAdvanceIsMonotonic(t *testing.T) {
	s := &Subscription{}
	s.Advance(100)
	require.EqualValues(t, 100, s.LastReturnedAt)

	s.Advance(50)
	require.EqualValues(t, 100, s.LastReturnedAt, "cursor must not move backwards")

	s.Advance(150)
	require.EqualValues(t, 150, s.LastReturnedAt)
}
