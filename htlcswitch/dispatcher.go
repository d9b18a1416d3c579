// Package htlcswitch provides a reference payment.HTLCDispatcher:
// the collaborator that dispatches an already-onion-wrapped HTLC to
// the first hop and later reports its outcome. A production
// implementation forwards through the real lightning peer-to-peer
// transport and circuit map (the Switch the original mock.go exercised
// against); that transport is the out-of-scope JSON-RPC/P2P layer
// (spec.md §1). This package keeps the original mock's shape — a
// registry of in-flight sends keyed by payment hash, resolved
// asynchronously — but drives it from a pluggable outcome source
// instead of a simulated peer link.
package htlcswitch

import (
	"context"
	"fmt"
	"sync"

	"github.com/lightninglabs/paymentd/payment"
)

// Outcome is queued by a test or demo harness to resolve a send that's
// currently blocked in WaitSendPay.
type Outcome struct {
	PaymentHash [32]byte
	PartID      uint64
	Result      *payment.Result
}

// InMemoryDispatcher is a payment.HTLCDispatcher backed by a map of
// channels, one per (payment hash, part id) pair. SendOnion registers
// the pending wait; Resolve (called by a test, or by a real transport
// adapter wrapping this type) delivers the eventual outcome.
type InMemoryDispatcher struct {
	mu      sync.Mutex
	pending map[sendKey]chan *payment.Result
}

type sendKey struct {
	hash   [32]byte
	partID uint64
}

// NewInMemoryDispatcher returns an empty dispatcher.
func NewInMemoryDispatcher() *InMemoryDispatcher {
	return &InMemoryDispatcher{
		pending: make(map[sendKey]chan *payment.Result),
	}
}

// SendOnion implements payment.HTLCDispatcher. It only registers the
// wait channel; the actual HTLC departure onto the wire is the
// transport layer's job and is not modeled here.
func (d *InMemoryDispatcher) SendOnion(ctx context.Context, req payment.HTLCRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := sendKey{hash: req.PaymentHash, partID: req.PartID}
	if _, ok := d.pending[key]; ok {
		return fmt.Errorf("htlcswitch: duplicate send for part %d", req.PartID)
	}
	d.pending[key] = make(chan *payment.Result, 1)
	return nil
}

// WaitSendPay implements payment.HTLCDispatcher, blocking until
// Resolve is called for this (hash, partID) pair or ctx is canceled.
func (d *InMemoryDispatcher) WaitSendPay(ctx context.Context, hash [32]byte, partID uint64) (*payment.Result, error) {
	d.mu.Lock()
	key := sendKey{hash: hash, partID: partID}
	ch, ok := d.pending[key]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("htlcswitch: no in-flight send for part %d", partID)
	}

	select {
	case res := <-ch:
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve delivers res to whichever goroutine is blocked in
// WaitSendPay for (hash, partID). It is a no-op if no send is
// currently pending for that key.
func (d *InMemoryDispatcher) Resolve(hash [32]byte, partID uint64, res *payment.Result) {
	d.mu.Lock()
	ch, ok := d.pending[sendKey{hash: hash, partID: partID}]
	d.mu.Unlock()
	if !ok {
		return
	}
	ch <- res
}
