package session

import "sync"

// writeQueues multiplexes the immediate and bulk send queues onto a
// single ordered stream for the writer task. Frames enqueued on a
// given queue are delivered in enqueue order; the immediate queue
// is always drained ahead of the bulk queue, but neither queue is
// reordered relative to itself.
type writeQueues struct {
	mu   sync.Mutex
	cond *sync.Cond

	immediate []string

	bulk         []string
	bulkBytes    int
	maxBulkBytes int

	closed bool
}

func newWriteQueues(maxBulkBytes int) *writeQueues {
	q := &writeQueues{maxBulkBytes: maxBulkBytes}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// PushImmediate enqueues a latency-sensitive frame (PING, PONG, CAP
// replies, ERROR). The immediate queue has no byte cap.
func (q *writeQueues) PushImmediate(frame string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.immediate = append(q.immediate, frame)
	q.cond.Signal()
}

// PushBulk enqueues frame onto the bulk (sendq) queue. If adding it
// would exceed maxBulkBytes, the frame is dropped (not blocked) and
// dropped is reported true so the caller can log/count it.
func (q *writeQueues) PushBulk(frame string) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return true
	}
	if q.bulkBytes+len(frame) > q.maxBulkBytes {
		return true
	}
	q.bulk = append(q.bulk, frame)
	q.bulkBytes += len(frame)
	q.cond.Signal()
	return false
}

// Pop blocks until a frame is available or the queue is closed. ok
// is false only once the queue is closed and drained.
func (q *writeQueues) Pop() (frame string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.immediate) == 0 && len(q.bulk) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.immediate) > 0 {
		frame = q.immediate[0]
		q.immediate = q.immediate[1:]
		return frame, true
	}
	if len(q.bulk) > 0 {
		frame = q.bulk[0]
		q.bulk = q.bulk[1:]
		q.bulkBytes -= len(frame)
		return frame, true
	}

	return "", false
}

// Close marks the queue closed and wakes any blocked Pop so the
// writer task can exit.
func (q *writeQueues) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
