package payment

import (
	"context"

	"github.com/go-errors/errors"
	"github.com/lightninglabs/paymentd/onion"
)

// ErrDoubleContinue is the fatal programmer bug named in spec.md §5:
// "Double-continue or missing-continue is a fatal programmer bug."
// Continue does not detect a double or missing call, and nothing in
// this package returns this error.
var ErrDoubleContinue = errors.New("payment: continue(p) invoked twice for the same transition")

const maxRouteHops = 20

// Start begins a payment's life: it is the entry point for both a
// fresh root and a freshly spawned child, and simply invokes Continue
// from the INITIALIZED state with current_modifier at -1, per spec.md
// §4.F-H.
func Start(p *Payment) {
	Continue(p)
}

// Continue is the trampoline described in spec.md §4.F-H: it advances
// current_modifier, dispatching to the next modifier's Step if one
// remains, or to the driver's own state-dispatch once the modifier
// chain for this transition is exhausted.
func Continue(p *Payment) {
	p.mu.Lock()
	p.CurrentModifier++
	idx := p.CurrentModifier
	p.mu.Unlock()

	if idx < len(p.modifiers) {
		mod := p.modifiers[idx]
		data := p.modifierData[idx]
		mod.Step(data, p)
		return
	}

	p.mu.Lock()
	p.CurrentModifier = -1
	step := p.Step
	p.mu.Unlock()

	switch step {
	case StepInitialized:
		getRoute(p)
	case StepGotRoute:
		buildOnion(p)
	case StepOnionPayload:
		sendOnion(p)
	case StepSuccess, StepFailed:
		finished(p)
	case StepRetry, StepSplit:
		// Do nothing; a child's completion re-enters via
		// childFinished.
	}
}

// getRoute implements spec.md §4.F-H "Route acquisition": ask the
// routing collaborator, then enforce the two pre-send budgets before
// ever entering GOT_ROUTE.
func getRoute(p *Payment) {
	root := p.State()

	req := RouteRequest{
		Destination:     p.GetRouteDestination,
		AmountMsat:      p.GetRouteAmount,
		RiskFactor:      1,
		CLTV:            p.GetRouteCLTV,
		MaxHops:         maxRouteHops,
		ExcludeChannels: root.ExcludedChannels(p.Amount),
		ExcludeNodes:    root.ExcludedNodes(),
	}

	r, err := p.Collaborators().Router.GetRoute(context.Background(), req)
	if err != nil {
		failInternal(p, errors.WrapPrefix(err, "getroute failed", 0))
		return
	}
	if len(r) == 0 {
		failInternal(p, errors.New("getroute returned an empty route"))
		return
	}

	if r.TotalAmount() < p.GetRouteAmount {
		failInternal(p, errors.New("getroute returned a route whose first-hop amount undercuts the requested amount"))
		return
	}

	// The route is recorded as soon as the collaborator produces one,
	// even if the budget check below rejects it: spec.md §8 scenario
	// S2 requires a budget-rejected attempt to still count as "had a
	// route" for the retry modifier's predicate, consuming a retry
	// rather than being treated as if getroute never answered.
	p.mu.Lock()
	p.Route = r
	p.mu.Unlock()

	fee := r.TotalAmount() - p.Amount
	if fee > p.FeeBudget || r.TotalDelay() > p.CLTVBudget {
		p.Result = &Result{
			State:        ResultFailed,
			FailCode:     BudgetExceeded,
			FailCodeName: BudgetExceeded.Name(),
			Message:      "route exceeded fee or cltv budget",
		}
		p.setStep(StepFailed)
		Continue(p)
		return
	}

	p.setStep(StepGotRoute)
	Continue(p)
}

// buildOnion implements the GOT_ROUTE -> ONION_PAYLOAD transition:
// map the (possibly modifier-stitched) route to the per-hop payload
// stream, per spec.md §4.D-E.
func buildOnion(p *Payment) {
	hops, err := onion.BuildPayloads(p.Route, p.StartBlock, p.PaymentSecret, p.Amount)
	if err != nil {
		failInternal(p, errors.WrapPrefix(err, "unable to build onion payloads", 0))
		return
	}

	resp, err := p.Collaborators().Onion.CreateOnion(context.Background(), OnionRequest{
		Hops:      hops,
		AssocData: onion.AssociatedData(p.PaymentHash),
	})
	if err != nil {
		failInternal(p, errors.WrapPrefix(err, "createonion failed", 0))
		return
	}

	p.mu.Lock()
	p.onionBlob = resp.Onion
	p.sharedSecrets = resp.SharedSecrets
	p.mu.Unlock()

	p.setStep(StepOnionPayload)
	Continue(p)
}

// sendOnion implements the ONION_PAYLOAD -> SUCCESS|FAILED
// transition: dispatch the HTLC and await its resolution.
func sendOnion(p *Payment) {
	first := p.Route[0]
	ctx := context.Background()

	err := p.Collaborators().HTLC.SendOnion(ctx, HTLCRequest{
		Onion: p.onionBlob,
		FirstHop: FirstHop{
			SCID:       first.ShortChannelID,
			Direction:  first.Direction,
			AmountMsat: first.Amount,
			Delay:      first.Delay,
		},
		PaymentHash:   p.PaymentHash,
		SharedSecrets: p.sharedSecrets,
		PartID:        p.PartID,
	})
	if err != nil {
		failInternal(p, errors.WrapPrefix(err, "sendonion failed", 0))
		return
	}

	res, err := p.Collaborators().HTLC.WaitSendPay(ctx, p.PaymentHash, p.PartID)
	if err != nil {
		failInternal(p, errors.WrapPrefix(err, "waitsendpay failed", 0))
		return
	}

	p.mu.Lock()
	p.Result = res
	p.mu.Unlock()

	if res.State == ResultComplete {
		p.setStep(StepSuccess)
		Continue(p)
		return
	}

	classified := classify(p, HopFailure{
		ErringIndex: erringIndexOf(res),
		Code:        res.FailCode,
		RawMessage:  res.RawMessage,
	})
	classified.AmountSent = res.AmountSent
	p.mu.Lock()
	p.Result = classified
	p.mu.Unlock()

	p.setStep(StepFailed)
	Continue(p)
}

// erringIndexOf extracts the erring index the HTLC dispatcher reports
// on a failed waitsendpay result, defaulting to -1 (no index) if the
// collaborator didn't supply one.
func erringIndexOf(res *Result) int {
	if res.ErringIndex != nil {
		return *res.ErringIndex
	}
	return -1
}

// failInternal records an internal-collaborator failure (spec.md §7
// "internal": RPC collaborator failed or returned malformed data) and
// drives the payment to FAILED.
func failInternal(p *Payment, err error) {
	log.Errorf("payment %d: %v", p.ID, err)
	p.mu.Lock()
	p.Result = &Result{
		State:        ResultFailed,
		FailCode:     Internal,
		FailCodeName: Internal.Name(),
		Message:      err.Error(),
	}
	p.mu.Unlock()
	p.setStep(StepFailed)
	Continue(p)
}

// finished implements spec.md §4.F-H "SUCCESS / FAILED -> finished(p)":
// it notifies the parent, if any, or surfaces the root's result to the
// caller exactly once.
func finished(p *Payment) {
	p.EndTime = p.State().clock.Now()

	if p.Parent != nil {
		childFinished(p.Parent, p)
		return
	}

	res := Collect(p)
	p.State().finish(res)
}

// childFinished is invoked when a spawned child reaches a terminal
// state; per spec.md §4.F-H "RETRY/SPLIT -> do nothing; a child's
// completion will re-enter via child_finished", the parent itself
// stays in RETRY/SPLIT and only the root ever re-emits a result, via
// the post-order aggregator once every leaf in the tree is terminal.
func childFinished(parent *Payment, child *Payment) {
	if !allChildrenTerminal(parent) {
		return
	}
	if parent.Parent != nil {
		childFinished(parent.Parent, parent)
		return
	}

	res := Collect(parent)
	parent.State().finish(res)
}

func allChildrenTerminal(p *Payment) bool {
	p.mu.Lock()
	children := append([]*Payment(nil), p.Children...)
	p.mu.Unlock()

	for _, c := range children {
		if !subtreeResolved(c) {
			return false
		}
	}
	return true
}

// subtreeResolved reports whether p and everything below it has
// settled: a SUCCESS/FAILED leaf is resolved outright; a RETRY/SPLIT
// node is resolved once every child it spawned is itself resolved.
// This lets childFinished walk arbitrarily deep retry chains, not just
// one level, since a RETRY node's own Step never leaves RETRY even
// after its child finishes.
func subtreeResolved(p *Payment) bool {
	switch p.currentStep() {
	case StepSuccess, StepFailed:
		return true
	case StepRetry, StepSplit:
		p.mu.Lock()
		children := append([]*Payment(nil), p.Children...)
		p.mu.Unlock()

		if len(children) == 0 {
			return false
		}
		for _, c := range children {
			if !subtreeResolved(c) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
