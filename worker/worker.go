// Package worker runs the hashing agents. Each worker owns a Mailbox, hashes
// the newest work item it has adopted until a newer one arrives or the
// hashing ceiling passes, and reports qualifying nonces on a shared channel.
package worker

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"example.org/recorderd"
	"example.org/recorderd/blockheader"
	"example.org/recorderd/responder"
)

// MaximumHashDuration limits hashing on one work item when no newer item
// arrives.
const MaximumHashDuration = 120 * time.Second

// ErrDigest wraps a failure of the digest function. It stops the worker.
var ErrDigest = errors.New("digest failure")

// DigestFunc computes the digest of a candidate buffer.
type DigestFunc func(candidate []byte) ([]byte, error)

type Config struct {
	Connection int
	Timeout    time.Duration
	Digest     DigestFunc
	Recorder   recorderd.Recorder
	Logger     log.Logger
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = MaximumHashDuration
	}
	if c.Digest == nil {
		c.Digest = blockheader.Digest
	}
	if c.Recorder == nil {
		c.Recorder = recorderd.NopRecorder
	}
	if c.Logger == nil {
		c.Logger = log.Root()
	}
}

type Worker struct {
	id      int
	config  Config
	mailbox *Mailbox
	results chan<- responder.Response
	log     log.Logger

	hashes atomic.Uint64
}

func New(id int, mailbox *Mailbox, results chan<- responder.Response, config Config) *Worker {
	config.setDefaults()
	return &Worker{
		id:      id,
		config:  config,
		mailbox: mailbox,
		results: results,
		log:     config.Logger.With("worker", id),
	}
}

func (w *Worker) ID() int { return w.id }

// Hashes is the number of digests this worker has computed.
func (w *Worker) Hashes() uint64 { return w.hashes.Load() }

// Run waits for work and hashes it until the mailbox is closed or the
// digest function fails. The mailbox is closed on return so the dispatcher
// sees this worker as gone.
func (w *Worker) Run() error {
	defer w.mailbox.Close()

	for {
		w.log.Debug("Waiting for work")
		item, err := w.mailbox.Recv()
		if err != nil {
			return err
		}
		for {
			next, timedOut, err := w.hash(item)
			if err != nil {
				return err
			}
			if timedOut {
				break
			}
			item = next
		}
	}
}

// hash searches upward from item.Nonce. It returns the next work item when
// one preempts the search, or true once the ceiling passes with no new item.
// An abandoned search is never resumed.
func (w *Worker) hash(item responder.WorkItem) (responder.WorkItem, bool, error) {
	w.log.Debug("Start hashing", "job", item.Job, "nonce", fmt.Sprintf("%016x", item.Nonce))

	candidate := blockheader.AppendNonce(item.Header, item.Nonce)
	nonce := item.Nonce
	start := time.Now()
	var count uint64

	defer func() {
		elapsed := time.Since(start).Seconds()
		average := 0.0
		if elapsed > 0 {
			average = float64(count) / elapsed
		}
		w.log.Info("Hashing finished", "job", item.Job, "hashes", count,
			"elapsed", fmt.Sprintf("%6.2f", elapsed), "average", fmt.Sprintf("%7.3f", average))
	}()

	for {
		blockheader.SetNonce(candidate, nonce)
		digest, err := w.config.Digest(candidate)
		if err != nil {
			return responder.WorkItem{}, false, fmt.Errorf("worker %d: %w: %v", w.id, ErrDigest, err)
		}
		count++
		w.hashes.Add(1)

		if blockheader.Qualifies(digest) {
			w.log.Trace("Qualifying digest", "job", item.Job, "nonce", fmt.Sprintf("%016x", nonce), "digest", fmt.Sprintf("%x", digest))
			w.config.Recorder.RecordAction(recorderd.NonceFound{
				Connection: w.config.Connection,
				Job:        item.Job,
				Worker:     w.id,
				Nonce:      nonce,
			})
			w.results <- responder.NewResponse(item.Job, nonce)
		}

		next, ok, err := w.mailbox.TryRecv()
		if err != nil {
			return next, false, err
		}
		if ok {
			return next, false, nil
		}
		if time.Since(start) > w.config.Timeout {
			return responder.WorkItem{}, true, nil
		}
		nonce++
	}
}
