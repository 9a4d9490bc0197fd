package worker

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.org/recorderd/blockheader"
	"example.org/recorderd/responder"
)

// candidateNonce reads the nonce a fake digest is being asked about.
func candidateNonce(candidate []byte) uint64 {
	return binary.LittleEndian.Uint64(candidate[blockheader.PackedSize:])
}

// fakeDigest qualifies when accept returns true for the candidate nonce.
func fakeDigest(delay time.Duration, accept func(uint64) bool) DigestFunc {
	return func(candidate []byte) ([]byte, error) {
		if len(candidate) != blockheader.CandidateSize {
			return nil, errors.New("bad candidate size")
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		digest := make([]byte, blockheader.DigestSize)
		if !accept(candidateNonce(candidate)) {
			digest[blockheader.DigestSize-1] = 1
		}
		return digest, nil
	}
}

func startWorker(t *testing.T, config Config) (*Worker, *Mailbox, chan responder.Response, chan error) {
	t.Helper()
	mb := NewMailbox(FIFO)
	results := make(chan responder.Response, ResultsCapacity)
	w := New(1, mb, results, config)
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- w.Run()
		close(finished)
	}()
	t.Cleanup(func() {
		mb.Close()
		for {
			select {
			case <-results:
			case <-finished:
				return
			}
		}
	})
	return w, mb, results, done
}

func nextResult(t *testing.T, results <-chan responder.Response) responder.Response {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no result")
	}
	return responder.Response{}
}

func TestWorkerEmitsQualifyingNonces(t *testing.T) {
	_, mb, results, _ := startWorker(t, Config{
		Digest: fakeDigest(0, func(n uint64) bool { return n%4 == 0 }),
	})
	require.NoError(t, mb.Send(item("job-1", 100)))

	var last uint64
	for i := 0; i < 5; i++ {
		r := nextResult(t, results)
		assert.Equal(t, responder.RequestNonce, r.Request)
		assert.Equal(t, "job-1", r.Job)
		n, err := r.Nonce()
		require.NoError(t, err)
		assert.Zero(t, n%4)
		assert.GreaterOrEqual(t, n, uint64(100))
		if i > 0 {
			assert.Greater(t, n, last, "nonces increase within a run")
		}
		last = n
	}
}

func TestWorkerPreemption(t *testing.T) {
	_, mb, results, _ := startWorker(t, Config{
		Digest: fakeDigest(time.Millisecond, func(uint64) bool { return true }),
	})
	require.NoError(t, mb.Send(item("old", 0)))
	r := nextResult(t, results)
	require.Equal(t, "old", r.Job)

	require.NoError(t, mb.Send(item("new", 1<<40)))

	var adopted bool
	for i := 0; i < ResultsCapacity+20; i++ {
		r := nextResult(t, results)
		n, err := r.Nonce()
		require.NoError(t, err)
		if !adopted {
			if r.Job == "old" {
				continue
			}
			adopted = true
			assert.Equal(t, uint64(1<<40), n, "search restarts at the new start nonce")
			continue
		}
		assert.Equal(t, "new", r.Job, "no result for the old job after adoption")
		assert.Greater(t, n, uint64(1<<40))
	}
	assert.True(t, adopted)
}

func TestWorkerIdleTimeout(t *testing.T) {
	w, mb, _, done := startWorker(t, Config{
		Timeout: 20 * time.Millisecond,
		Digest:  fakeDigest(time.Millisecond, func(uint64) bool { return false }),
	})
	require.NoError(t, mb.Send(item("stale", 0)))

	require.Eventually(t, func() bool { return w.Hashes() > 0 }, time.Second, time.Millisecond)

	// once the ceiling has passed the count stops moving
	var settled uint64
	require.Eventually(t, func() bool {
		before := w.Hashes()
		time.Sleep(30 * time.Millisecond)
		settled = w.Hashes()
		return settled == before
	}, 2*time.Second, time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("worker stopped after timeout: %v", err)
	default:
	}

	require.NoError(t, mb.Send(item("fresh", 0)))
	require.Eventually(t, func() bool { return w.Hashes() > settled }, time.Second, time.Millisecond)
}

func TestWorkerDigestFailure(t *testing.T) {
	var calls atomic.Int32
	_, mb, _, done := startWorker(t, Config{
		Digest: func([]byte) ([]byte, error) {
			calls.Add(1)
			return nil, errors.New("out of memory")
		},
	})
	require.NoError(t, mb.Send(item("job", 0)))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDigest)
	case <-time.After(time.Second):
		t.Fatal("worker kept running after digest failure")
	}
	assert.Equal(t, int32(1), calls.Load(), "digest failures are not retried")
	assert.ErrorIs(t, mb.Send(item("job", 1)), ErrMailboxClosed)
}

func TestWorkerStopsOnClose(t *testing.T) {
	_, mb, _, done := startWorker(t, Config{
		Digest: fakeDigest(0, func(uint64) bool { return false }),
	})
	require.NoError(t, mb.Send(item("job", 0)))
	mb.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrMailboxClosed)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
