package payment

import (
	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/route"
)

// Summary is the single answer the tree aggregator surfaces to the
// caller, spec.md §4.J "Finished decision at root" / §6 "Exit from
// the system boundary".
type Summary struct {
	Status ResultState

	AmountMsat     lnwire.MilliSatoshi
	AmountSentMsat lnwire.MilliSatoshi
	Parts          int
	Attempts       int

	PaymentPreimage *[32]byte

	FailCode     FailCode
	FailCodeName string
	Message      string

	ErringIndex     *int
	ErringNode      *route.Vertex
	ErringChannel   *lnwire.ShortChannelID
	ErringDirection *uint8
}

type treeAgg struct {
	sent         lnwire.MilliSatoshi
	preimage     *[32]byte
	leafStates   uint16
	treeStates   uint16
	attempts     int
	failure      *Result
	failureOrder int
}

// Collect implements spec.md §4.J `collect(p)`: a post-order traversal
// computing sent-amount, preimage, failure summary, then the root
// finished-decision. It may be called on any node (used internally by
// finished/childFinished on the root), but callers asking "what is
// the tree's answer so far" should call it on the root.
func Collect(p *Payment) *Summary {
	order := 0
	agg := collectNode(p, &order)

	s := &Summary{
		AmountMsat: p.Amount,
		Attempts:   agg.attempts,
	}

	if agg.preimage != nil {
		s.Status = ResultComplete
		s.AmountSentMsat = agg.sent
		s.PaymentPreimage = agg.preimage
		s.Parts = countSuccessLeaves(p)
		return s
	}

	if agg.failure == nil || agg.failure.FailCode < NodeErrorMin {
		s.Status = ResultFailed
		s.FailCode = RouteNotFound
		s.FailCodeName = RouteNotFound.Name()
		s.Message = "no viable route found within budget and retry limits"
		return s
	}

	s.FailCode = agg.failure.FailCode
	s.FailCodeName = agg.failure.FailCodeName
	s.Message = agg.failure.Message
	s.ErringIndex = agg.failure.ErringIndex
	s.ErringChannel = agg.failure.ErringChannel
	s.ErringDirection = agg.failure.ErringDirection
	if agg.failure.ErringNode != nil {
		v := *agg.failure.ErringNode
		s.ErringNode = &v
	}

	// Per spec.md §4.J, the status is derived from the leaf-state
	// bitmap: any leaf still mid-flight (not yet SUCCESS/FAILED) means
	// the overall answer is still pending.
	nonTerminal := stepBit(StepInitialized) | stepBit(StepGotRoute) | stepBit(StepOnionPayload)
	if agg.leafStates&nonTerminal != 0 {
		s.Status = ResultPending
	} else {
		s.Status = ResultFailed
	}

	return s
}

func stepBit(s Step) uint16 {
	return 1 << uint(s)
}

func collectNode(p *Payment, order *int) *treeAgg {
	p.mu.Lock()
	children := append([]*Payment(nil), p.Children...)
	step := p.Step
	result := p.Result
	hasRoute := p.Route != nil
	p.mu.Unlock()

	agg := &treeAgg{
		leafStates: 0,
		treeStates: stepBit(step),
	}

	if hasRoute {
		agg.attempts++
	}

	isLeaf := len(children) == 0

	if isLeaf {
		agg.leafStates |= stepBit(step)

		if result != nil {
			if result.State == ResultComplete {
				pre := result.PaymentPreimage
				agg.preimage = pre
				agg.sent = result.AmountSent
			} else if result.State == ResultFailed {
				agg.failure = result
				*order++
				agg.failureOrder = *order
			}
		}
		return agg
	}

	for _, c := range children {
		childAgg := collectNode(c, order)

		agg.sent += childAgg.sent
		agg.leafStates |= childAgg.leafStates
		agg.treeStates |= childAgg.treeStates
		agg.attempts += childAgg.attempts

		if agg.preimage == nil && childAgg.preimage != nil {
			agg.preimage = childAgg.preimage
		}

		agg.failure = higherFailure(agg.failure, agg.failureOrder,
			childAgg.failure, childAgg.failureOrder, &agg.failureOrder)
	}

	return agg
}

// higherFailure picks the failure with the strictly higher failcode;
// ties keep whichever was first-seen (lower order value), per spec.md
// §4.J "ties broken by first-seen".
func higherFailure(a *Result, aOrder int, b *Result, bOrder int, outOrder *int) *Result {
	if a == nil {
		*outOrder = bOrder
		return b
	}
	if b == nil {
		*outOrder = aOrder
		return a
	}
	if b.FailCode > a.FailCode {
		*outOrder = bOrder
		return b
	}
	*outOrder = aOrder
	return a
}

func countSuccessLeaves(p *Payment) int {
	p.mu.Lock()
	children := append([]*Payment(nil), p.Children...)
	step := p.Step
	p.mu.Unlock()

	if len(children) == 0 {
		if step == StepSuccess {
			return 1
		}
		return 0
	}

	total := 0
	for _, c := range children {
		total += countSuccessLeaves(c)
	}
	return total
}
