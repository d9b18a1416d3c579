package payment

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/lightninglabs/paymentd/build"
	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/route"
)

var log = build.NewSubsystemLogger("PAYM")

// Step is one of the payment state machine's states, spec.md §4.F-H.
type Step int

const (
	StepInitialized Step = iota
	StepGotRoute
	StepOnionPayload
	StepSuccess
	StepFailed
	StepRetry
	StepSplit
)

func (s Step) String() string {
	switch s {
	case StepInitialized:
		return "INITIALIZED"
	case StepGotRoute:
		return "GOT_ROUTE"
	case StepOnionPayload:
		return "ONION_PAYLOAD"
	case StepSuccess:
		return "SUCCESS"
	case StepFailed:
		return "FAILED"
	case StepRetry:
		return "RETRY"
	case StepSplit:
		return "SPLIT"
	default:
		return "UNKNOWN"
	}
}

// terminal reports whether s is one of the leaf-ending states
// SUCCESS/FAILED (as opposed to RETRY/SPLIT, which are terminal for
// this node but parenthood-bearing).
func (s Step) terminal() bool {
	return s == StepSuccess || s == StepFailed
}

// ChannelHint is the orchestrator's belief about one directed channel,
// spec.md §3 "Channel hint". Created when a failure implicates the
// channel; never removed within a root's lifetime.
type ChannelHint struct {
	SCID              lnwire.ShortChannelID
	Direction         uint8
	Enabled           bool
	EstimatedCapacity lnwire.MilliSatoshi
}

type hintKey struct {
	scid      uint64
	direction uint8
}

// RootState is the shared state every node in a payment tree reads
// through its root pointer: channel hints, the excluded-node set, the
// global abort flag, and the local node identifier (spec.md §3 "Shared
// root state"). Mutations are monotonic: hints are only added or have
// their enabled flag cleared; nodes are only added to the excluded
// set. spec.md §5 says the single-threaded cooperative model needs no
// locking; this Go translation spawns retries/splits as real
// goroutines (see DESIGN.md), so RootState does need a mutex to
// preserve that same monotonicity under concurrent mutation.
type RootState struct {
	mu            sync.Mutex
	LocalNodeID   route.Vertex
	hints         map[hintKey]*ChannelHint
	excludedNodes map[route.Vertex]struct{}
	abort         bool
	nextPartID    uint64
	clock         clock.Clock

	// finishOnce guards "the result has been surfaced to the caller
	// exactly once" (spec.md §5 "cmd-pointer is nulled after emission").
	finishOnce sync.Once
	onFinished func(*Summary)
}

// NewRootState constructs the shared state for a fresh payment tree.
func NewRootState(localNode route.Vertex, clk clock.Clock) *RootState {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &RootState{
		LocalNodeID:   localNode,
		hints:         make(map[hintKey]*ChannelHint),
		excludedNodes: make(map[route.Vertex]struct{}),
		clock:         clk,
	}
}

// AddHint records or updates a channel hint, enforcing the monotonic
// invariant from spec.md §8 property 9: once enabled=false, a hint can
// never be flipped back to enabled=true.
func (s *RootState) AddHint(scid lnwire.ShortChannelID, direction uint8,
	enabled bool, capacity lnwire.MilliSatoshi) {

	s.mu.Lock()
	defer s.mu.Unlock()

	key := hintKey{scid: scid.ToUint64(), direction: direction}
	existing, ok := s.hints[key]
	if ok && !existing.Enabled {
		// Once disabled, stays disabled; capacity of a disabled
		// channel is meaningless so leave it at 0.
		return
	}

	s.hints[key] = &ChannelHint{
		SCID:              scid,
		Direction:         direction,
		Enabled:           enabled,
		EstimatedCapacity: capacity,
	}
}

// ExcludeNode adds a node to the root's excluded set. Monotonic: nodes
// are never removed within a root's lifetime.
func (s *RootState) ExcludeNode(v route.Vertex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excludedNodes[v] = struct{}{}
}

// Abort sets the global kill switch (spec.md §5 "Cancellation").
// Setting it prevents spawning new retries/splits; in-flight HTLCs are
// unaffected.
func (s *RootState) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abort = true
}

// Aborted reports the current value of root.abort.
func (s *RootState) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abort
}

// ExcludedChannels returns the channels that must be excluded from a
// getroute call at the given payment amount: hints with enabled=false,
// or whose estimated_capacity the amount meets or exceeds (spec.md
// §4.F-H "Excluded channels").
func (s *RootState) ExcludedChannels(amount lnwire.MilliSatoshi) []ExcludedChannel {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ExcludedChannel
	for _, h := range s.hints {
		if !h.Enabled || amount >= h.EstimatedCapacity {
			out = append(out, ExcludedChannel{
				SCID:      h.SCID,
				Direction: h.Direction,
			})
		}
	}
	return out
}

// Hints returns a snapshot of every channel hint recorded so far,
// suitable for persisting to an on-disk cache (see package hintstore)
// and reloading to seed a later root's state.
func (s *RootState) Hints() []ChannelHint {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChannelHint, 0, len(s.hints))
	for _, h := range s.hints {
		out = append(out, *h)
	}
	return out
}

// ExcludedNodes returns the root's excluded-node list.
func (s *RootState) ExcludedNodes() []route.Vertex {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]route.Vertex, 0, len(s.excludedNodes))
	for v := range s.excludedNodes {
		out = append(out, v)
	}
	return out
}

// NextPartID hands out the next MPP part id, root.next_partid++.
func (s *RootState) NextPartID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPartID++
	return s.nextPartID
}

// finish surfaces the result to the caller exactly once, per spec.md
// §5 "cmd-pointer is nulled after emission to make double-emission
// impossible".
func (s *RootState) finish(res *Summary) {
	s.finishOnce.Do(func() {
		if s.onFinished != nil {
			s.onFinished(res)
		}
	})
}

// OnFinished registers the callback invoked exactly once when the
// root payment's result is ready to surface to the caller. It must be
// set before Start(root) is called.
func (s *RootState) OnFinished(fn func(*Summary)) {
	s.onFinished = fn
}

// InvoiceRef carries the optional invoice-supplied routing hints,
// spec.md §3 "optional invoice reference with min-final-CLTV and
// routehints". Invoice decoding itself is a non-goal (spec.md §1); the
// caller is responsible for producing this struct from whatever
// invoice representation it owns.
type InvoiceRef struct {
	MinFinalCLTVDelta uint32
	RouteHints        [][]RouteHintHop
}

// RouteHintHop is one hop of an invoice-supplied routehint.
type RouteHintHop struct {
	NodeID                    route.Vertex
	ShortChannelID            lnwire.ShortChannelID
	FeeBaseMsat               lnwire.MilliSatoshi
	FeeProportionalMillionths uint32
	CLTVExpiryDelta           uint16
}

// Payment is one node of the payment-attempt tree, spec.md §3
// "Payment (tree node)".
type Payment struct {
	ID       uint64
	Parent   *Payment
	Children []*Payment

	root *Payment // the tree's root node; root.root == root

	state *RootState     // only meaningful on root
	coll  *Collaborators // shared across the whole tree

	Destination         route.Vertex
	GetRouteDestination route.Vertex
	// GetRouteAmount and GetRouteCLTV are the values actually sent to
	// the routing collaborator; they default to Amount/CLTVBudget but
	// may be inflated by the routehint modifier when
	// GetRouteDestination is redirected at a routehint's entry node.
	GetRouteAmount lnwire.MilliSatoshi
	GetRouteCLTV   uint32

	PaymentHash [32]byte
	Amount      lnwire.MilliSatoshi
	FeeBudget   lnwire.MilliSatoshi
	CLTVBudget  uint32
	PartID      uint64
	StartTime   time.Time
	EndTime     time.Time

	Step            Step
	CurrentModifier int

	Route  route.Route
	Result *Result

	modifierData []interface{}
	modifiers    []*Modifier

	StartBlock    uint32
	Invoice       *InvoiceRef
	PaymentSecret *[32]byte

	onionBlob     []byte
	sharedSecrets [][32]byte

	mu sync.Mutex // guards Children and this node's Step/Route/Result
}

// Root returns the tree's root payment.
func (p *Payment) Root() *Payment {
	return p.root
}

// State returns the shared root state; valid on any node in the tree.
func (p *Payment) State() *RootState {
	return p.root.state
}

// Collaborators returns the external collaborators shared by the
// whole tree.
func (p *Payment) Collaborators() *Collaborators {
	return p.root.coll
}

// NewRoot constructs a fresh root Payment. modifiers is inherited
// verbatim by every descendant, per spec.md §9 "children inherit
// parent's modifier list verbatim".
func NewRoot(id uint64, dest route.Vertex, paymentHash [32]byte,
	amount lnwire.MilliSatoshi, feeBudget lnwire.MilliSatoshi,
	cltvBudget uint32, startBlock uint32, modifiers []*Modifier,
	state *RootState, coll *Collaborators) *Payment {

	p := &Payment{
		ID:                  id,
		Destination:         dest,
		GetRouteDestination: dest,
		GetRouteAmount:      amount,
		GetRouteCLTV:        cltvBudget,
		PaymentHash:         paymentHash,
		Amount:              amount,
		FeeBudget:           feeBudget,
		CLTVBudget:          cltvBudget,
		StartBlock:          startBlock,
		PartID:              0,
		Step:                StepInitialized,
		CurrentModifier:     -1,
		modifiers:           modifiers,
		state:               state,
		coll:                coll,
	}
	p.root = p
	p.StartTime = state.clock.Now()
	p.modifierData = initModifiers(p)
	return p
}

// newChild constructs a child payment (a retry or split leg) of
// parent, inheriting the root pointer, collaborators, modifier list,
// and destination/secret fields, per spec.md §9.
func newChild(parent *Payment, amount lnwire.MilliSatoshi,
	feeBudget lnwire.MilliSatoshi, cltvBudget uint32) *Payment {

	root := parent.root
	partID := root.state.NextPartID()
	child := &Payment{
		ID:                  partID,
		Parent:              parent,
		root:                root,
		Destination:         parent.Destination,
		GetRouteDestination: parent.Destination,
		GetRouteAmount:      amount,
		GetRouteCLTV:        cltvBudget,
		PaymentHash:         parent.PaymentHash,
		Amount:              amount,
		FeeBudget:           feeBudget,
		CLTVBudget:          cltvBudget,
		StartBlock:          parent.StartBlock,
		PartID:              partID,
		Step:                StepInitialized,
		CurrentModifier:     -1,
		modifiers:           parent.modifiers,
		Invoice:             parent.Invoice,
		PaymentSecret:       parent.PaymentSecret,
		state:               root.state,
		coll:                root.coll,
	}
	child.StartTime = root.state.clock.Now()
	child.modifierData = initModifiers(child)

	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()

	return child
}

func initModifiers(p *Payment) []interface{} {
	data := make([]interface{}, len(p.modifiers))
	for i, mod := range p.modifiers {
		if mod.Init != nil {
			data[i] = mod.Init(p)
		}
	}
	return data
}

// ModifierData returns the per-payment data slot owned by mod,
// located by identity, per spec.md §9 "payment_mod_get_data".
func (p *Payment) ModifierData(mod *Modifier) interface{} {
	for i, m := range p.modifiers {
		if m == mod {
			return p.modifierData[i]
		}
	}
	return nil
}

// setStep transitions p.Step under lock; driver and modifiers must go
// through this rather than assigning Step directly once a payment is
// live across goroutines.
func (p *Payment) setStep(s Step) {
	p.mu.Lock()
	p.Step = s
	p.mu.Unlock()
}

func (p *Payment) currentStep() Step {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Step
}
