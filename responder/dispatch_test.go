package responder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.org/recorderd"
	"example.org/recorderd/blockheader"
)

type fakeQueue struct {
	items  []WorkItem
	closed bool
}

func (q *fakeQueue) Send(item WorkItem) error {
	if q.closed {
		return errors.New("receiver gone")
	}
	q.items = append(q.items, item)
	return nil
}

type actionLog struct {
	actions []interface{}
}

func (l *actionLog) RecordAction(action interface{}) {
	l.actions = append(l.actions, action)
}

func newQueues(n int) ([]*fakeQueue, []Queue) {
	fakes := make([]*fakeQueue, n)
	queues := make([]Queue, n)
	for i := range fakes {
		fakes[i] = &fakeQueue{}
		queues[i] = fakes[i]
	}
	return fakes, queues
}

func TestDispatchPartitionsNonces(t *testing.T) {
	fakes, queues := newQueues(4)
	d := NewDispatcher(1, queues, nil, nil)
	require.NoError(t, d.Dispatch([]byte(jobMessage("j1"))))

	const n0 = uint64(0xe19f903abf385a11)
	job, err := ParseJob([]byte(jobMessage("j1")))
	require.NoError(t, err)
	packed := job.Header.Pack()

	seen := map[uint64]bool{}
	for i, q := range fakes {
		require.Len(t, q.items, 1)
		it := q.items[0]
		assert.Equal(t, "j1", it.Job)
		assert.Equal(t, packed, it.Header)
		assert.Len(t, it.Header, blockheader.PackedSize)
		assert.Equal(t, n0+uint64(i)*WorkerSpacing, it.Nonce)
		assert.False(t, seen[it.Nonce])
		seen[it.Nonce] = true
	}

	// every worker owns its header copy
	fakes[0].items[0].Header[0] ^= 0xff
	assert.Equal(t, packed, fakes[1].items[0].Header)
}

func TestDispatchFIFOPerWorker(t *testing.T) {
	fakes, queues := newQueues(2)
	d := NewDispatcher(1, queues, nil, nil)
	require.NoError(t, d.Dispatch([]byte(jobMessage("first"))))
	require.NoError(t, d.Dispatch([]byte(jobMessage("second"))))
	for _, q := range fakes {
		require.Len(t, q.items, 2)
		assert.Equal(t, "first", q.items[0].Job)
		assert.Equal(t, "second", q.items[1].Job)
	}
}

func TestDispatchRejectsMalformed(t *testing.T) {
	fakes, queues := newQueues(3)
	rec := &actionLog{}
	d := NewDispatcher(5, queues, rec, nil)

	err := d.Dispatch([]byte(`{"job":"1","txZero":"","txIds":[]}`))
	assert.ErrorIs(t, err, ErrMalformedJob)
	for _, q := range fakes {
		assert.Empty(t, q.items)
	}
	require.Len(t, rec.actions, 1)
	assert.IsType(t, recorderd.JobRejected{}, rec.actions[0])
}

func TestDispatchClosedWorkerIsolated(t *testing.T) {
	fakes, queues := newQueues(3)
	fakes[1].closed = true
	rec := &actionLog{}
	d := NewDispatcher(1, queues, rec, nil)

	err := d.Dispatch([]byte(jobMessage("j")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkerChannelClosed)
	assert.Contains(t, err.Error(), "worker 2")

	require.Len(t, fakes[0].items, 1)
	assert.Empty(t, fakes[1].items)
	require.Len(t, fakes[2].items, 1)
	assert.Equal(t, fakes[0].items[0].Nonce+2*WorkerSpacing, fakes[2].items[0].Nonce,
		"a closed worker keeps its band")

	var dispatched int
	for _, a := range rec.actions {
		if _, ok := a.(recorderd.JobDispatched); ok {
			dispatched++
		}
	}
	assert.Equal(t, 2, dispatched)
}
