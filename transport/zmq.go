// Package transport connects to the job publisher and the submission
// endpoint over ZeroMQ, encrypted and authenticated with CURVE.
package transport

import (
	"errors"
	"fmt"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// Curve holds what a client needs to authenticate a server.
type Curve struct {
	ServerPublic []byte
	Client       *KeyPair
	UseIPv4      bool
}

func (c Curve) apply(socket *zmq.Socket) error {
	if len(c.ServerPublic) != 32 {
		return fmt.Errorf("server public key length %d, want 32", len(c.ServerPublic))
	}
	if c.Client == nil {
		return errors.New("missing client key pair")
	}
	if err := socket.SetIpv6(!c.UseIPv4); err != nil {
		return err
	}
	if err := socket.SetLinger(0); err != nil {
		return err
	}
	return socket.ClientAuthCurve(z85(c.ServerPublic), z85(c.Client.Public[:]), z85(c.Client.Secret[:]))
}

// Subscriber receives every message published on one endpoint.
type Subscriber struct {
	socket *zmq.Socket
	poller *zmq.Poller
}

func NewSubscriber(address string, curve Curve) (*Subscriber, error) {
	socket, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, err
	}
	if err := curve.apply(socket); err != nil {
		socket.Close()
		return nil, fmt.Errorf("subscriber %s: %w", address, err)
	}
	// empty prefix subscribes to everything
	if err := socket.SetSubscribe(""); err != nil {
		socket.Close()
		return nil, err
	}
	if err := socket.Connect(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("subscriber %s: %w", address, err)
	}
	poller := zmq.NewPoller()
	poller.Add(socket, zmq.POLLIN)
	return &Subscriber{socket: socket, poller: poller}, nil
}

// Receive waits up to timeout for a message; a negative timeout waits
// forever. It returns nil, nil when the timeout expires.
func (s *Subscriber) Receive(timeout time.Duration) ([]byte, error) {
	polled, err := s.poller.Poll(timeout)
	if err != nil {
		return nil, err
	}
	if len(polled) == 0 {
		return nil, nil
	}
	return s.socket.RecvBytes(0)
}

func (s *Subscriber) Close() error {
	return s.socket.Close()
}

// Requester is a REQ socket: exactly one request may be outstanding.
type Requester struct {
	socket *zmq.Socket
}

func NewRequester(address string, curve Curve) (*Requester, error) {
	socket, err := zmq.NewSocket(zmq.REQ)
	if err != nil {
		return nil, err
	}
	if err := curve.apply(socket); err != nil {
		socket.Close()
		return nil, fmt.Errorf("requester %s: %w", address, err)
	}
	if err := socket.Connect(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("requester %s: %w", address, err)
	}
	return &Requester{socket: socket}, nil
}

// Request sends message and blocks for the reply.
func (r *Requester) Request(message []byte) ([]byte, error) {
	if _, err := r.socket.SendBytes(message, 0); err != nil {
		return nil, err
	}
	return r.socket.RecvBytes(0)
}

func (r *Requester) Close() error {
	return r.socket.Close()
}
