// Package payment implements the core of spec.md: the Payment tree
// (§4.F), the modifier pipeline (§4.G), the state-machine driver
// (§4.H), the failure classifier (§4.I) and the result aggregator
// (§4.J). This file defines the external collaborators named in
// spec.md §6 as plain Go interfaces; the production implementations
// live outside this package (JSON-RPC clients, in lnd's terms the
// routerrpc/htlcswitch boundary), and tests use fakes.
package payment

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/onion"
	"github.com/lightninglabs/paymentd/route"
)

// ExcludedChannel identifies a directed channel the routing
// collaborator should avoid, per spec.md §6's exclude list.
type ExcludedChannel struct {
	SCID      lnwire.ShortChannelID
	Direction uint8
}

// RouteRequest is the getroute request shape from spec.md §6.
type RouteRequest struct {
	Destination     route.Vertex
	AmountMsat      lnwire.MilliSatoshi
	RiskFactor      int
	CLTV            uint32
	MaxHops         int
	ExcludeChannels []ExcludedChannel
	ExcludeNodes    []route.Vertex
}

// Router is the routing service collaborator: source-routed path
// computation over the gossip graph, which is explicitly out of scope
// for this core (spec.md §1).
type Router interface {
	GetRoute(ctx context.Context, req RouteRequest) (route.Route, error)
}

// OnionRequest is the createonion request shape from spec.md §6.
type OnionRequest struct {
	Hops       []onion.Hop
	AssocData  []byte
	SessionKey *btcec.PrivateKey
}

// OnionResponse is the createonion reply: the finished onion blob
// plus the per-hop shared secrets used later to decrypt failures.
type OnionResponse struct {
	Onion         []byte
	SharedSecrets [][32]byte
}

// OnionConstructor builds the Sphinx onion packet from per-hop
// payloads; the mixnet cryptography itself is out of scope (§1).
type OnionConstructor interface {
	CreateOnion(ctx context.Context, req OnionRequest) (OnionResponse, error)
}

// FirstHop is the directly-connected channel an HTLC departs on.
type FirstHop struct {
	SCID       lnwire.ShortChannelID
	Direction  uint8
	AmountMsat lnwire.MilliSatoshi
	Delay      uint32
}

// HTLCRequest is the sendonion request shape from spec.md §6.
type HTLCRequest struct {
	Onion         []byte
	FirstHop      FirstHop
	PaymentHash   [32]byte
	SharedSecrets [][32]byte
	PartID        uint64
}

// HTLCDispatcher fires an onion down the wire and later reports its
// resolution via WaitSendPay, matching sendonion/waitsendpay in
// spec.md §6.
type HTLCDispatcher interface {
	SendOnion(ctx context.Context, req HTLCRequest) error
	WaitSendPay(ctx context.Context, paymentHash [32]byte, partID uint64) (*Result, error)
}

// ChainInfo reports the current chain tip (spec.md §6 "getinfo"). The
// driver does not call it: the start_block used for CLTV
// absolutization is the startBlock value passed to NewRoot.
type ChainInfo interface {
	GetInfo(ctx context.Context) (blockHeight uint32, err error)
}

// PeerChannel is one entry of the local topology's listpeers reply.
type PeerChannel struct {
	SCID          lnwire.ShortChannelID
	Direction     uint8
	SpendableMsat lnwire.MilliSatoshi
	Connected     bool
}

// Topology reports our own directly-connected channels, used by the
// local-hints modifier to seed root hints before the first getroute
// call (spec.md §4.F-H "Local-hints modifier").
type Topology interface {
	ListPeers(ctx context.Context) ([]PeerChannel, error)
}

// Collaborators bundles every external interface a payment tree needs.
// It is constructed once and shared, unmodified, by every node in the
// tree via Payment.collaborators.
type Collaborators struct {
	Router   Router
	Onion    OnionConstructor
	HTLC     HTLCDispatcher
	Chain    ChainInfo
	Topology Topology
}
