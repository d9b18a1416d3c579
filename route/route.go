// Package route implements spec.md §4.D: the ordered-hop route
// representation produced by the external routing collaborator (§6)
// and consumed by the onion payload builder (package onion). Actual
// pathfinding is out of scope per spec.md §1 ("gossip/routing graph
// maintenance" is an external collaborator); this package only models
// the wire shape of a route and the small amount of arithmetic the
// orchestrator itself needs to perform on it (budget checks, hint
// matching, routehint stitching).
package route

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightninglabs/paymentd/lnwire"
)

// Style distinguishes the legacy fixed-size onion payload from the
// newer TLV-stream encoding, per spec.md §4.D/E.
type Style int

const (
	// Legacy is the fixed 32-byte-plus-realm onion payload.
	Legacy Style = iota
	// TLV is the bigsize-prefixed TLV stream payload.
	TLV
)

// Vertex is a compressed, 33-byte node public key, used as a map key
// throughout the orchestrator (excluded-node sets, routehint lookups).
type Vertex [33]byte

// NewVertex compresses a public key into a Vertex.
func NewVertex(pub *btcec.PublicKey) Vertex {
	var v Vertex
	copy(v[:], pub.SerializeCompressed())
	return v
}

// String returns the full lowercase hex encoding of all 33 bytes.
func (v Vertex) String() string {
	return hexString(v[:])
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

// Less reports whether v sorts before other, used to compute a hop's
// wire direction bit: node_id_cmp(prev.nodeid, next.nodeid) > 0 ? 1 : 0.
func (v Vertex) Less(other Vertex) bool {
	return bytes.Compare(v[:], other[:]) < 0
}

// Hop is one forwarding step of a route: "forward Amount via SCID
// with outgoing CLTV computed from Delay at the state-machine level."
// The amount at hop i is what hop i forwards onward (so hop 0's
// amount is the total amount sent by us, fees included); Delay at hop
// i is the outgoing CLTV relative to the chain tip at send time.
type Hop struct {
	NodeID         Vertex
	ShortChannelID lnwire.ShortChannelID
	Direction      uint8
	Amount         lnwire.MilliSatoshi
	Delay          uint32
	Style          Style
}

// Route is the ordered sequence of hops a payment will travel across,
// from our own first hop through to the final recipient.
type Route []Hop

// TotalAmount is route[0].Amount, i.e. what we hand to the first hop
// including all forwarding fees along the path.
func (r Route) TotalAmount() lnwire.MilliSatoshi {
	if len(r) == 0 {
		return 0
	}
	return r[0].Amount
}

// TotalDelay is route[0].Delay, the outgoing CLTV at our own first
// hop.
func (r Route) TotalDelay() uint32 {
	if len(r) == 0 {
		return 0
	}
	return r[0].Delay
}

// FinalHop returns the last hop of the route, the payment recipient.
func (r Route) FinalHop() Hop {
	return r[len(r)-1]
}

// Direction computes the wire direction bit for a channel between a
// and b, following node_id_cmp(prev.nodeid, next.nodeid) > 0 ? 1 : 0
// from the routehint-stitching rule in spec.md §4.D-E.
func Direction(a, b Vertex) uint8 {
	if a.Less(b) {
		return 0
	}
	return 1
}
