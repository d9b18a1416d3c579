package payment

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/route"
)

// fakeRouter returns a scripted sequence of routes/errors, one per
// call, so tests can drive multi-attempt scenarios (retries, splits)
// deterministically.
type fakeRouter struct {
	responses []routeResponse
	calls     int
}

type routeResponse struct {
	route route.Route
	err   error
}

func (f *fakeRouter) GetRoute(ctx context.Context, req RouteRequest) (route.Route, error) {
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	r := f.responses[i]
	return r.route, r.err
}

type fakeOnion struct{}

func (fakeOnion) CreateOnion(ctx context.Context, req OnionRequest) (OnionResponse, error) {
	secrets := make([][32]byte, len(req.Hops))
	return OnionResponse{Onion: []byte("onion"), SharedSecrets: secrets}, nil
}

// fakeHTLC returns a scripted sequence of waitsendpay results, one per
// SendOnion/WaitSendPay pair.
type fakeHTLC struct {
	results []*Result
	calls   int
}

func (f *fakeHTLC) SendOnion(ctx context.Context, req HTLCRequest) error {
	return nil
}

func (f *fakeHTLC) WaitSendPay(ctx context.Context, hash [32]byte, partID uint64) (*Result, error) {
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i], nil
}

type fakeChain struct{ height uint32 }

func (f fakeChain) GetInfo(ctx context.Context) (uint32, error) { return f.height, nil }

type fakeTopology struct{ peers []PeerChannel }

func (f fakeTopology) ListPeers(ctx context.Context) ([]PeerChannel, error) {
	return f.peers, nil
}

func vertex(b byte) route.Vertex {
	var v route.Vertex
	v[0] = b
	return v
}

// startAndWaitForFinish registers the finish callback, then starts root
// and waits for the tree's Summary. The callback has to be in place
// before Start: a tree that spawns no retry goroutine finishes inside
// Start itself.
func startAndWaitForFinish(t *testing.T, state *RootState, root *Payment) *Summary {
	t.Helper()

	ch := make(chan *Summary, 1)
	state.OnFinished(func(s *Summary) { ch <- s })
	Start(root)

	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("payment tree never finished")
		return nil
	}
}

// TestS1SingleHopSuccess is spec.md §8 scenario S1: a single-hop route
// that succeeds outright.
func TestS1SingleHopSuccess(t *testing.T) {
	t.Parallel()

	r := route.Route{
		{NodeID: vertex(0xB0), Amount: 1000, Delay: 9, Style: route.Legacy},
	}

	router := &fakeRouter{responses: []routeResponse{{route: r}}}
	var preimage [32]byte
	preimage[0] = 0x01
	htlc := &fakeHTLC{results: []*Result{
		{State: ResultComplete, AmountSent: 1000, PaymentPreimage: &preimage},
	}}

	state := NewRootState(vertex(0xA0), clock.NewDefaultClock())
	coll := &Collaborators{
		Router: router, Onion: fakeOnion{}, HTLC: htlc,
		Chain: fakeChain{height: 700_000}, Topology: fakeTopology{},
	}

	modifiers := []*Modifier{RetryModifier, RouteHintModifier, LocalHintsModifier}
	root := NewRoot(1, vertex(0xB0), [32]byte{0xAA}, 1000, 50, 100, 700_000, modifiers, state, coll)

	summary := startAndWaitForFinish(t, state, root)

	require.Equal(t, ResultComplete, summary.Status)
	require.Equal(t, 1, summary.Parts)
	require.Equal(t, lnwire.MilliSatoshi(1000), summary.AmountSentMsat)
	require.Equal(t, &preimage, summary.PaymentPreimage)
}

// TestS2FeeBudgetExhaustsRetries is spec.md §8 scenario S2: every
// getroute response exceeds the fee budget, so every attempt fails at
// the pre-send check and the retry modifier keeps spawning children
// until retries_left is exhausted, at which point the aggregator
// reports ROUTE_NOT_FOUND.
func TestS2FeeBudgetExhaustsRetries(t *testing.T) {
	t.Parallel()

	overBudget := route.Route{
		{NodeID: vertex(0xB0), Amount: 1100, Delay: 9, Style: route.Legacy},
	}
	router := &fakeRouter{responses: []routeResponse{{route: overBudget}}}
	htlc := &fakeHTLC{results: []*Result{}}

	state := NewRootState(vertex(0xA0), clock.NewDefaultClock())
	coll := &Collaborators{
		Router: router, Onion: fakeOnion{}, HTLC: htlc,
		Chain: fakeChain{height: 700_000}, Topology: fakeTopology{},
	}

	modifiers := []*Modifier{RetryModifier}
	root := NewRoot(1, vertex(0xB0), [32]byte{0xAA}, 1000, 50, 100, 700_000, modifiers, state, coll)

	summary := startAndWaitForFinish(t, state, root)

	require.Equal(t, ResultFailed, summary.Status)
	require.Equal(t, RouteNotFound, summary.FailCode)
	// root + 10 retries.
	require.Equal(t, 11, router.calls)
}

// TestS3ChannelDisabledSpawnsRetryWithExclusion is spec.md §8 scenario
// S3: a PERMANENT_CHANNEL_FAILURE at erring index 0 hints the channel
// disabled, and a child retries with it excluded.
func TestS3ChannelDisabledSpawnsRetryWithExclusion(t *testing.T) {
	t.Parallel()

	scid1 := lnwire.ShortChannelID{BlockHeight: 1, TxIndex: 0, TxPosition: 0}
	firstRoute := route.Route{
		{NodeID: vertex(0xB0), ShortChannelID: scid1, Amount: 1005, Delay: 9, Style: route.Legacy},
		{NodeID: vertex(0xC0), Amount: 1000, Delay: 5, Style: route.Legacy},
	}
	secondRoute := route.Route{
		{NodeID: vertex(0xC0), Amount: 1000, Delay: 5, Style: route.Legacy},
	}

	router := &fakeRouter{responses: []routeResponse{
		{route: firstRoute}, {route: secondRoute},
	}}

	idx0 := 0
	var preimage [32]byte
	preimage[0] = 0x02
	htlc := &fakeHTLC{results: []*Result{
		{State: ResultFailed, FailCode: PermanentChannelFailure, ErringIndex: &idx0},
		{State: ResultComplete, AmountSent: 1000, PaymentPreimage: &preimage},
	}}

	state := NewRootState(vertex(0xA0), clock.NewDefaultClock())
	coll := &Collaborators{
		Router: router, Onion: fakeOnion{}, HTLC: htlc,
		Chain: fakeChain{height: 700_000}, Topology: fakeTopology{},
	}

	modifiers := []*Modifier{RetryModifier}
	root := NewRoot(1, vertex(0xC0), [32]byte{0xAA}, 1000, 50, 100, 700_000, modifiers, state, coll)

	summary := startAndWaitForFinish(t, state, root)

	require.Equal(t, ResultComplete, summary.Status)

	hint, ok := state.hints[hintKey{scid: scid1.ToUint64(), direction: 0}]
	require.True(t, ok)
	require.False(t, hint.Enabled)
	require.Equal(t, lnwire.MilliSatoshi(0), hint.EstimatedCapacity)

	require.Len(t, router.responses[1].route, 1)
	require.Equal(t, 2, router.calls)
}

// TestS4TemporaryCapacityHint is spec.md §8 scenario S4: a
// TEMPORARY_CHANNEL_FAILURE adds an enabled hint at 0.75x the failed
// hop's amount.
func TestS4TemporaryCapacityHint(t *testing.T) {
	t.Parallel()

	scid := lnwire.ShortChannelID{BlockHeight: 2, TxIndex: 0, TxPosition: 0}
	r := route.Route{
		{NodeID: vertex(0xB0), ShortChannelID: scid, Amount: 10_000, Delay: 9, Style: route.Legacy},
	}
	router := &fakeRouter{responses: []routeResponse{{route: r}}}

	idx0 := 0
	htlc := &fakeHTLC{results: []*Result{
		{State: ResultFailed, FailCode: TemporaryChannelFailure, ErringIndex: &idx0},
	}}

	state := NewRootState(vertex(0xA0), clock.NewDefaultClock())
	coll := &Collaborators{
		Router: router, Onion: fakeOnion{}, HTLC: htlc,
		Chain: fakeChain{height: 700_000}, Topology: fakeTopology{},
	}

	// No retry modifier: a single attempt is enough to observe the
	// hint this test cares about.
	root := NewRoot(1, vertex(0xB0), [32]byte{0xAA}, 10_000, 500, 100, 700_000, nil, state, coll)

	startAndWaitForFinish(t, state, root)

	hint, ok := state.hints[hintKey{scid: scid.ToUint64(), direction: 0}]
	require.True(t, ok)
	require.True(t, hint.Enabled)
	require.Equal(t, lnwire.MilliSatoshi(7500), hint.EstimatedCapacity)
}

// TestS5DestinationUnknownAbortsNoRetry is spec.md §8 scenario S5: a
// failure at the final hop with INCORRECT_OR_UNKNOWN_PAYMENT_DETAILS
// sets root.abort and spawns no retry, even with retries available.
func TestS5DestinationUnknownAbortsNoRetry(t *testing.T) {
	t.Parallel()

	r := route.Route{
		{NodeID: vertex(0xB0), Amount: 1000, Delay: 9, Style: route.Legacy},
	}
	router := &fakeRouter{responses: []routeResponse{{route: r}}}

	idx0 := 0
	htlc := &fakeHTLC{results: []*Result{
		{State: ResultFailed, FailCode: IncorrectOrUnknownPaymentDetails, ErringIndex: &idx0},
	}}

	state := NewRootState(vertex(0xA0), clock.NewDefaultClock())
	coll := &Collaborators{
		Router: router, Onion: fakeOnion{}, HTLC: htlc,
		Chain: fakeChain{height: 700_000}, Topology: fakeTopology{},
	}

	modifiers := []*Modifier{RetryModifier}
	root := NewRoot(1, vertex(0xB0), [32]byte{0xAA}, 1000, 50, 100, 700_000, modifiers, state, coll)

	summary := startAndWaitForFinish(t, state, root)

	require.True(t, state.Aborted())
	require.Empty(t, root.Children)
	require.Equal(t, IncorrectOrUnknownPaymentDetails, summary.FailCode)
	require.Equal(t, ResultFailed, summary.Status)
}

// TestMonotonicHintNeverReenables exercises spec.md §8 property 9: once
// a hint is disabled it cannot be re-enabled within the same root.
func TestMonotonicHintNeverReenables(t *testing.T) {
	t.Parallel()

	state := NewRootState(vertex(0xA0), clock.NewDefaultClock())
	scid := lnwire.ShortChannelID{BlockHeight: 3, TxIndex: 0, TxPosition: 0}

	state.AddHint(scid, 0, false, 0)
	state.AddHint(scid, 0, true, 5000)

	hint := state.hints[hintKey{scid: scid.ToUint64(), direction: 0}]
	require.False(t, hint.Enabled)
}

func TestHintsSnapshotReflectsAllRecordedHints(t *testing.T) {
	t.Parallel()

	state := NewRootState(vertex(0xA1), clock.NewDefaultClock())
	scid1 := lnwire.ShortChannelID{BlockHeight: 1, TxIndex: 0, TxPosition: 0}
	scid2 := lnwire.ShortChannelID{BlockHeight: 2, TxIndex: 0, TxPosition: 0}

	state.AddHint(scid1, 0, true, 1000)
	state.AddHint(scid2, 1, false, 0)

	hints := state.Hints()
	require.Len(t, hints, 2)
}
