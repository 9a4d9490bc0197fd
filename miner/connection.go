// Package miner runs one mining connection: a poller feeding jobs from the
// publisher to a worker pool, and a submitter returning found nonces.
package miner

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"example.org/recorderd"
	"example.org/recorderd/responder"
	"example.org/recorderd/submit"
	"example.org/recorderd/worker"
)

const (
	DefaultPollInterval  = time.Second
	DefaultStatsInterval = time.Minute
)

// Subscriber yields job messages. Receive returns nil, nil on timeout.
type Subscriber interface {
	Receive(timeout time.Duration) ([]byte, error)
	Close() error
}

type Requester interface {
	submit.Requester
	Close() error
}

type Options struct {
	Config     recorderd.ConnectionConfig
	Subscriber Subscriber
	Requester  Requester

	// zero values select the defaults
	Digest        worker.DigestFunc
	HashTimeout   time.Duration
	PollInterval  time.Duration
	StatsInterval time.Duration

	Recorder recorderd.Recorder
	Logger   log.Logger
}

type Connection struct {
	number     int
	opts       Options
	pool       *worker.Pool
	dispatcher *responder.Dispatcher
	submitter  *submit.Submitter
	log        log.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	pollDone chan struct{}
	errCh    chan error
	wg       sync.WaitGroup
	start    time.Time
}

func NewConnection(opts Options) (*Connection, error) {
	if opts.Subscriber == nil || opts.Requester == nil {
		return nil, errors.New("connection needs a subscriber and a requester")
	}
	policy, err := worker.ParsePolicy(opts.Config.Queue)
	if err != nil {
		return nil, err
	}
	if opts.Config.Workers <= 0 {
		opts.Config.Workers = recorderd.DefaultWorkers
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = DefaultStatsInterval
	}
	if opts.Recorder == nil {
		opts.Recorder = recorderd.NopRecorder
	}
	if opts.Logger == nil {
		opts.Logger = log.Root()
	}

	number := opts.Config.Number
	logger := opts.Logger.With("conn", number)
	pool := worker.NewPool(opts.Config.Workers, policy, worker.Config{
		Connection: number,
		Timeout:    opts.HashTimeout,
		Digest:     opts.Digest,
		Recorder:   opts.Recorder,
		Logger:     logger,
	})
	return &Connection{
		number:     number,
		opts:       opts,
		pool:       pool,
		dispatcher: responder.NewDispatcher(number, pool.Queues(), opts.Recorder, logger),
		submitter:  submit.New(number, opts.Requester, opts.Recorder, logger),
		log:        logger,
		stopCh:     make(chan struct{}),
		pollDone:   make(chan struct{}),
		errCh:      make(chan error, 2),
	}, nil
}

// Start launches the workers, the submitter, the poller and the stats
// reporter.
func (c *Connection) Start() {
	c.start = time.Now()
	c.log.Info("Starting connection", "workers", c.pool.Size(), "queue", c.opts.Config.Queue)
	c.pool.Start()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		if err := c.submitter.Run(c.pool.Results()); err != nil {
			c.fail(fmt.Errorf("connection %d: sender: %w", c.number, err))
			// keep workers from blocking on a channel nobody reads
			for r := range c.pool.Results() {
				c.log.Warn("Dropping nonce", "job", r.Job, "packed", fmt.Sprintf("%x", r.Packed))
			}
		}
	}()
	go func() {
		defer close(c.pollDone)
		if err := c.poll(); err != nil {
			c.fail(fmt.Errorf("connection %d: poller: %w", c.number, err))
		}
	}()
	go func() {
		defer c.wg.Done()
		c.statsReporter()
	}()
}

// Errors delivers errors that stop the poller or the submitter.
func (c *Connection) Errors() <-chan error {
	return c.errCh
}

func (c *Connection) fail(err error) {
	c.log.Error("Connection failed", "err", err)
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *Connection) poll() error {
	for {
		select {
		case <-c.stopCh:
			return nil
		default:
		}

		c.log.Trace("Polling")
		msg, err := c.opts.Subscriber.Receive(c.opts.PollInterval)
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}
		c.log.Trace("Received", "json", string(msg))

		if err := c.dispatcher.Dispatch(msg); err != nil {
			c.log.Error("Dispatch failed", "err", err)
			if errors.Is(err, responder.ErrWorkerChannelClosed) && c.pool.Alive() == 0 {
				return fmt.Errorf("no workers left: %w", c.pool.Err())
			}
			continue
		}
		c.log.Debug("Dispatch succeeded")
	}
}

func (c *Connection) statsReporter() {
	ticker := time.NewTicker(c.opts.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			hashes := c.pool.HashCount()
			elapsed := time.Since(c.start).Seconds()
			c.log.Info("Hash rate", "hashes", hashes, "workers", c.pool.Alive(),
				"average", fmt.Sprintf("%.3f", float64(hashes)/elapsed))
		}
	}
}

// HashCount is the number of digests computed by this connection's workers.
func (c *Connection) HashCount() uint64 {
	return c.pool.HashCount()
}

// Stop ends the poller, closes the worker mailboxes and waits for the
// submitter to flush the nonces already found, then closes the sockets.
// It must follow Start.
func (c *Connection) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		<-c.pollDone
		c.pool.Close()
		c.wg.Wait()
		if err := c.opts.Subscriber.Close(); err != nil {
			c.log.Warn("Subscriber close", "err", err)
		}
		if err := c.opts.Requester.Close(); err != nil {
			c.log.Warn("Requester close", "err", err)
		}
		c.log.Info("Connection stopped", "hashes", c.pool.HashCount())
	})
}
