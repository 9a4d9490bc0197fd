// Package responder turns job messages from the publisher into per-worker
// work items, and defines the nonce submission sent back.
package responder

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"example.org/recorderd/blockheader"
)

// RequestNonce tags every submission.
const RequestNonce = "block.nonce"

var (
	ErrMalformedJob        = errors.New("malformed job")
	ErrHeaderLength        = errors.New("header length")
	ErrWorkerChannelClosed = errors.New("worker channel closed")
)

// Job is one mining job as broadcast by the publisher. TxZero and TxIDs are
// carried for completeness; the miner only hashes the header.
type Job struct {
	Job    string
	Header blockheader.Header
	TxZero []byte
	TxIDs  []string
}

// jobJSON field names match case-insensitively, so "Job" and "job" are
// both accepted. TxZero is base64, the encoding/json default for []byte.
type jobJSON struct {
	Job    *string             `json:"job"`
	Header *blockheader.Header `json:"header"`
	TxZero *[]byte             `json:"txZero"`
	TxIDs  *[]string           `json:"txIds"`
}

// ParseJob decodes a job message. Every failure wraps ErrMalformedJob.
func ParseJob(message []byte) (*Job, error) {
	var aux jobJSON
	if err := json.Unmarshal(message, &aux); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	switch {
	case aux.Job == nil:
		return nil, fmt.Errorf("%w: missing field \"job\"", ErrMalformedJob)
	case aux.Header == nil:
		return nil, fmt.Errorf("%w: missing field \"header\"", ErrMalformedJob)
	case aux.TxZero == nil:
		return nil, fmt.Errorf("%w: missing field \"txZero\"", ErrMalformedJob)
	case aux.TxIDs == nil:
		return nil, fmt.Errorf("%w: missing field \"txIds\"", ErrMalformedJob)
	}
	return &Job{
		Job:    *aux.Job,
		Header: *aux.Header,
		TxZero: *aux.TxZero,
		TxIDs:  *aux.TxIDs,
	}, nil
}

func (j *Job) MarshalJSON() ([]byte, error) {
	return json.Marshal(jobJSON{
		Job:    &j.Job,
		Header: &j.Header,
		TxZero: &j.TxZero,
		TxIDs:  &j.TxIDs,
	})
}

// Response is the submission for a qualifying nonce.
type Response struct {
	Request string `json:"request"`
	Job     string `json:"job"`
	Packed  []byte `json:"packed"`
}

func NewResponse(job string, nonce uint64) Response {
	return Response{
		Request: RequestNonce,
		Job:     job,
		Packed:  binary.LittleEndian.AppendUint64(nil, nonce),
	}
}

// Nonce returns the little-endian nonce carried in Packed.
func (r Response) Nonce() (uint64, error) {
	if len(r.Packed) != 8 {
		return 0, fmt.Errorf("packed nonce length %d, want 8", len(r.Packed))
	}
	return binary.LittleEndian.Uint64(r.Packed), nil
}

// WorkItem is what a single worker receives: its own copy of the packed
// header and the first nonce of its partition.
type WorkItem struct {
	Header []byte
	Nonce  uint64
	Job    string
}
