package miner

import (
	"example.org/recorderd"
	"example.org/recorderd/transport"
)

// Dial opens the subscriber and requester sockets for config.
func Dial(config recorderd.ConnectionConfig, client *transport.KeyPair) (Subscriber, Requester, error) {
	serverKey, err := recorderd.DecodeKey(config.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	curve := transport.Curve{
		ServerPublic: serverKey,
		Client:       client,
		UseIPv4:      config.UseIPv4,
	}
	sub, err := transport.NewSubscriber(config.SubscribeAddress(), curve)
	if err != nil {
		return nil, nil, err
	}
	req, err := transport.NewRequester(config.RequestAddress(), curve)
	if err != nil {
		sub.Close()
		return nil, nil, err
	}
	return sub, req, nil
}
