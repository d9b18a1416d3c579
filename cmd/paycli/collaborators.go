package main

import (
	"context"

	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/payment"
	"github.com/lightninglabs/paymentd/route"
)

// loopbackCollaborators is a demo stand-in for the RPC-backed
// collaborators spec.md §6 names (routerrpc, htlcswitch, chain
// backend, gossip topology). Wiring real network clients for those is
// the out-of-scope JSON-RPC transport layer (spec.md §1); this command
// only needs to exercise the payment engine's own state machine, so it
// simulates a single direct channel straight to the destination and
// always reports success once the onion is built.
type loopbackCollaborators struct {
	localNode route.Vertex
}

func (l loopbackCollaborators) GetRoute(ctx context.Context, req payment.RouteRequest) (route.Route, error) {
	return route.Route{
		{
			NodeID:    req.Destination,
			Amount:    req.AmountMsat,
			Delay:     req.CLTV,
			Style:     route.TLV,
			Direction: route.Direction(l.localNode, req.Destination),
		},
	}, nil
}

func (l loopbackCollaborators) CreateOnion(ctx context.Context, req payment.OnionRequest) (payment.OnionResponse, error) {
	secrets := make([][32]byte, len(req.Hops))
	return payment.OnionResponse{Onion: []byte("paycli-loopback-onion"), SharedSecrets: secrets}, nil
}

func (l loopbackCollaborators) SendOnion(ctx context.Context, req payment.HTLCRequest) error {
	return nil
}

func (l loopbackCollaborators) WaitSendPay(ctx context.Context, hash [32]byte, partID uint64) (*payment.Result, error) {
	preimage := hash
	return &payment.Result{
		State:           payment.ResultComplete,
		AmountSent:      lnwire.MilliSatoshi(0),
		PaymentPreimage: &preimage,
	}, nil
}

func (l loopbackCollaborators) GetInfo(ctx context.Context) (uint32, error) {
	return 800_000, nil
}

func (l loopbackCollaborators) ListPeers(ctx context.Context) ([]payment.PeerChannel, error) {
	return nil, nil
}

func newLoopbackCollaborators(localNode route.Vertex) *payment.Collaborators {
	l := loopbackCollaborators{localNode: localNode}
	return &payment.Collaborators{
		Router:   l,
		Onion:    l,
		HTLC:     l,
		Chain:    l,
		Topology: l,
	}
}
