package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushPopOrder(t *testing.T) {
	q := newWriteQueues(1024)
	q.PushBulk("a")
	q.PushBulk("b")
	f, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "a", f)
	f, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "b", f)
}

func TestImmediateAheadOfBulk(t *testing.T) {
	q := newWriteQueues(1024)
	q.PushBulk("bulk")
	q.PushImmediate("fast")
	f, _ := q.Pop()
	assert.Equal(t, "fast", f)
	f, _ = q.Pop()
	assert.Equal(t, "bulk", f)
}

func TestBulkCapDrops(t *testing.T) {
	q := newWriteQueues(5)
	dropped := q.PushBulk("abcde")
	assert.False(t, dropped)
	dropped = q.PushBulk("x")
	assert.True(t, dropped)
}

func TestCloseUnblocksPop(t *testing.T) {
	q := newWriteQueues(1024)
	done := make(chan struct{})
	go func() {
		_, ok := q.Pop()
		assert.False(t, ok)
		close(done)
	}()
	q.Close()
	<-done
}
