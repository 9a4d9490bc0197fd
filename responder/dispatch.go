package responder

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"example.org/recorderd"
	"example.org/recorderd/blockheader"
)

// WorkerSpacing separates the first nonces of consecutive workers, giving
// each worker its own high-32-bit band.
const WorkerSpacing = 1 << 32

// Queue delivers work items to one worker. Send fails once the worker has
// gone away.
type Queue interface {
	Send(item WorkItem) error
}

type Dispatcher struct {
	connection int
	queues     []Queue
	recorder   recorderd.Recorder
	log        log.Logger
}

func NewDispatcher(connection int, queues []Queue, recorder recorderd.Recorder, logger log.Logger) *Dispatcher {
	if recorder == nil {
		recorder = recorderd.NopRecorder
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Dispatcher{
		connection: connection,
		queues:     queues,
		recorder:   recorder,
		log:        logger,
	}
}

// Dispatch parses a job message and sends worker i (1-based) the header with
// start nonce n0 + (i-1)*WorkerSpacing. Nothing is sent if the message is
// malformed. A closed queue does not stop delivery to the others; each one
// is reported in the returned error, which wraps ErrWorkerChannelClosed.
func (d *Dispatcher) Dispatch(message []byte) error {
	job, err := ParseJob(message)
	if err != nil {
		d.recorder.RecordAction(recorderd.JobRejected{Connection: d.connection, Reason: err.Error()})
		return err
	}

	d.log.Debug("Job received", "job", job.Job, "number", job.Header.Number, "txids", len(job.TxIDs))
	d.log.Trace("Job transaction zero", "job", job.Job, "txzero", fmt.Sprintf("%x", job.TxZero))
	d.recorder.RecordAction(recorderd.JobReceived{Connection: d.connection, Job: job.Job})

	packed := job.Header.Pack()
	if len(packed) != blockheader.PackedSize {
		err := fmt.Errorf("%w: %d bytes, want %d", ErrHeaderLength, len(packed), blockheader.PackedSize)
		d.recorder.RecordAction(recorderd.JobRejected{Connection: d.connection, Reason: err.Error()})
		return err
	}

	nonce := job.Header.StartNonce()
	var errs []error
	for i, q := range d.queues {
		w := i + 1
		item := WorkItem{
			Header: append([]byte(nil), packed...),
			Nonce:  nonce,
			Job:    job.Job,
		}
		if err := q.Send(item); err != nil {
			d.log.Warn("Worker queue closed", "worker", w, "err", err)
			errs = append(errs, fmt.Errorf("worker %d: %w", w, ErrWorkerChannelClosed))
		} else {
			d.log.Info("Job sent", "worker", w, "job", job.Job, "nonce", fmt.Sprintf("%016x", nonce))
			d.recorder.RecordAction(recorderd.JobDispatched{
				Connection: d.connection,
				Job:        job.Job,
				Worker:     w,
				Nonce:      nonce,
			})
		}
		nonce += WorkerSpacing
	}
	return errors.Join(errs...)
}
