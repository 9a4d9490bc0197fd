// Package submit delivers found nonces to the remote service. The request
// channel is strictly synchronous, so submissions go out one at a time in
// the order workers produced them; a slow reply delays later nonces.
package submit

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"example.org/recorderd"
	"example.org/recorderd/responder"
)

// Requester performs one request/reply round trip.
type Requester interface {
	Request(message []byte) ([]byte, error)
}

type Submitter struct {
	connection int
	requester  Requester
	recorder   recorderd.Recorder
	log        log.Logger
}

func New(connection int, requester Requester, recorder recorderd.Recorder, logger log.Logger) *Submitter {
	if recorder == nil {
		recorder = recorderd.NopRecorder
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Submitter{
		connection: connection,
		requester:  requester,
		recorder:   recorder,
		log:        logger,
	}
}

// Submit sends one response and returns the raw reply.
func (s *Submitter) Submit(r responder.Response) ([]byte, error) {
	message, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Submitting nonce", "job", r.Job, "packed", fmt.Sprintf("%x", r.Packed))
	s.log.Info("Request", "json", string(message))
	s.recorder.RecordAction(recorderd.NonceSubmitted{
		Connection: s.connection,
		Job:        r.Job,
		Packed:     r.Packed,
	})

	reply, err := s.requester.Request(message)
	if err != nil {
		return nil, fmt.Errorf("submit job %s: %w", r.Job, err)
	}
	s.log.Info("Reply", "json", string(reply))
	s.recorder.RecordAction(recorderd.SubmissionReply{
		Connection: s.connection,
		Job:        r.Job,
		Reply:      string(reply),
	})
	return reply, nil
}

// Run submits every response until results is closed. A transport error
// ends the loop; the reply content is only logged.
func (s *Submitter) Run(results <-chan responder.Response) error {
	for {
		s.log.Debug("Waiting for results")
		r, ok := <-results
		if !ok {
			return nil
		}
		if _, err := s.Submit(r); err != nil {
			return err
		}
	}
}
