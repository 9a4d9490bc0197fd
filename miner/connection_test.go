package miner

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.org/recorderd"
	"example.org/recorderd/blockheader"
	"example.org/recorderd/responder"
)

type fakeSubscriber struct {
	messages chan []byte
	mu       sync.Mutex
	closed   bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{messages: make(chan []byte, 16)}
}

func (s *fakeSubscriber) Receive(timeout time.Duration) ([]byte, error) {
	select {
	case msg := <-s.messages:
		return msg, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (s *fakeSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeRequester struct {
	mu       sync.Mutex
	requests []responder.Response
	fail     error
	closed   bool
}

func (r *fakeRequester) Request(message []byte) ([]byte, error) {
	var resp responder.Response
	if err := json.Unmarshal(message, &resp); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	r.requests = append(r.requests, resp)
	return []byte(`{"result":"ok"}`), nil
}

func (r *fakeRequester) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRequester) snapshot() []responder.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]responder.Response(nil), r.requests...)
}

// lowBitsDigest qualifies nonces whose low 16 bits are zero.
func lowBitsDigest(candidate []byte) ([]byte, error) {
	nonce := binary.LittleEndian.Uint64(candidate[blockheader.PackedSize:])
	digest := make([]byte, blockheader.DigestSize)
	if nonce&0xffff != 0 {
		digest[blockheader.DigestSize-1] = 0x80
	}
	return digest, nil
}

func jobMessage(t *testing.T, id string) []byte {
	t.Helper()
	job := responder.Job{
		Job:    id,
		Header: blockheader.Header{Version: 1, TransactionCount: 1, Number: 7, Timestamp: 1},
		TxZero: []byte{},
		TxIDs:  []string{},
	}
	data, err := json.Marshal(&job)
	require.NoError(t, err)
	return data
}

func newTestConnection(t *testing.T, workers int, digest func([]byte) ([]byte, error)) (*Connection, *fakeSubscriber, *fakeRequester) {
	t.Helper()
	sub := newFakeSubscriber()
	req := &fakeRequester{}
	c, err := NewConnection(Options{
		Config:        recorderd.ConnectionConfig{Number: 1, Workers: workers, Queue: "fifo"},
		Subscriber:    sub,
		Requester:     req,
		Digest:        digest,
		PollInterval:  5 * time.Millisecond,
		StatsInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return c, sub, req
}

func TestConnectionMinesAndSubmits(t *testing.T) {
	c, sub, req := newTestConnection(t, 2, lowBitsDigest)
	c.Start()

	sub.messages <- []byte(`{"job":"broken"}`)
	sub.messages <- jobMessage(t, "e2e")

	bands := map[uint64]bool{}
	require.Eventually(t, func() bool {
		for _, r := range req.snapshot() {
			if r.Job != "e2e" {
				continue
			}
			n, err := r.Nonce()
			if err == nil {
				bands[n>>32] = true
			}
		}
		return bands[0] && bands[1]
	}, 5*time.Second, 5*time.Millisecond)

	for _, r := range req.snapshot() {
		assert.Equal(t, responder.RequestNonce, r.Request)
		assert.Equal(t, "e2e", r.Job)
	}
	assert.NotZero(t, c.HashCount())

	c.Stop()
	assert.True(t, sub.closed)
	assert.True(t, req.closed)
	select {
	case err := <-c.Errors():
		t.Fatalf("unexpected error: %v", err)
	default:
	}
}

func TestConnectionSenderFailure(t *testing.T) {
	c, sub, req := newTestConnection(t, 1, lowBitsDigest)
	req.fail = errors.New("timeout")
	c.Start()
	defer c.Stop()

	sub.messages <- jobMessage(t, "doomed")
	select {
	case err := <-c.Errors():
		assert.Contains(t, err.Error(), "sender")
	case <-time.After(5 * time.Second):
		t.Fatal("sender failure not reported")
	}
}

func TestConnectionStopsWhenNoWorkersLeft(t *testing.T) {
	c, sub, _ := newTestConnection(t, 2, func([]byte) ([]byte, error) {
		return nil, errors.New("cannot allocate")
	})
	c.Start()
	defer c.Stop()

	sub.messages <- jobMessage(t, "first")
	require.Eventually(t, func() bool { return c.pool.Alive() == 0 }, 5*time.Second, time.Millisecond)

	sub.messages <- jobMessage(t, "second")
	select {
	case err := <-c.Errors():
		assert.Contains(t, err.Error(), "no workers left")
	case <-time.After(5 * time.Second):
		t.Fatal("poller kept running without workers")
	}
}

func TestNewConnectionRejectsBadQueue(t *testing.T) {
	_, err := NewConnection(Options{
		Config:     recorderd.ConnectionConfig{Queue: "stack"},
		Subscriber: newFakeSubscriber(),
		Requester:  &fakeRequester{},
	})
	assert.Error(t, err)

	_, err = NewConnection(Options{})
	assert.Error(t, err)
}
