package worker

import (
	"errors"
	"sync"
	"sync/atomic"

	"example.org/recorderd"
	"example.org/recorderd/responder"
)

// ResultsCapacity buffers found nonces between the workers and the single
// submitter.
const ResultsCapacity = 64

// Pool is a set of workers sharing one results channel.
type Pool struct {
	workers   []*Worker
	mailboxes []*Mailbox
	results   chan responder.Response
	config    Config

	wg    sync.WaitGroup
	alive atomic.Int32

	mu   sync.Mutex
	errs []error
}

func NewPool(workers int, policy Policy, config Config) *Pool {
	config.setDefaults()
	p := &Pool{
		results: make(chan responder.Response, ResultsCapacity),
		config:  config,
	}
	for i := 1; i <= workers; i++ {
		mb := NewMailbox(policy)
		p.mailboxes = append(p.mailboxes, mb)
		p.workers = append(p.workers, New(i, mb, p.results, config))
	}
	return p
}

// Start runs every worker in its own goroutine. The results channel is
// closed after the last worker stops.
func (p *Pool) Start() {
	p.alive.Store(int32(len(p.workers)))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			err := w.Run()
			p.alive.Add(-1)
			reason := "mailbox closed"
			if err != nil && !errors.Is(err, ErrMailboxClosed) {
				reason = err.Error()
				p.mu.Lock()
				p.errs = append(p.errs, err)
				p.mu.Unlock()
				w.log.Error("Worker failed", "err", err)
			} else {
				w.log.Debug("Worker stopped")
			}
			p.config.Recorder.RecordAction(recorderd.WorkerStopped{
				Connection: p.config.Connection,
				Worker:     w.id,
				Reason:     reason,
			})
		}(w)
	}
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Queues returns the worker mailboxes in worker order, for a dispatcher.
func (p *Pool) Queues() []responder.Queue {
	queues := make([]responder.Queue, len(p.mailboxes))
	for i, mb := range p.mailboxes {
		queues[i] = mb
	}
	return queues
}

func (p *Pool) Results() <-chan responder.Response {
	return p.results
}

func (p *Pool) Size() int {
	return len(p.workers)
}

// Alive is the number of workers still running.
func (p *Pool) Alive() int {
	return int(p.alive.Load())
}

// HashCount sums the per-worker digest counters.
func (p *Pool) HashCount() uint64 {
	var total uint64
	for _, w := range p.workers {
		total += w.Hashes()
	}
	return total
}

// Close closes every mailbox and waits for the workers to stop. A worker
// blocked handing over a result stops once that result is consumed.
func (p *Pool) Close() {
	for _, mb := range p.mailboxes {
		mb.Close()
	}
	p.wg.Wait()
}

// Err joins the errors of workers that failed.
func (p *Pool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}
