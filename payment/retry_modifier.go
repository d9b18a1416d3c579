package payment

import "github.com/lightningnetwork/lnd/ticker"

// defaultRetryBudget is the root's initial retries_left, spec.md
// §4.F-H "Retry policy (standard modifier): root initializes
// retries_left = 10".
const defaultRetryBudget = 10

// RetryPacer, when non-nil, gates every spawned retry's goroutine
// launch behind a tick, letting an operator pace retries instead of
// firing them immediately. spec.md §4.F-H's literal scenarios (S1-S6)
// assume immediate retry, so the zero value (nil) preserves that
// behavior bit-for-bit; a caller who wants backoff installs its own
// ticker.Ticker here (see config.Config.RetryPacer).
var RetryPacer ticker.Ticker

type retryData struct {
	retriesLeft int
}

// RetryModifier is the standard retry modifier from spec.md §4.F-H.
// On a payment entering FAILED, it spawns a child to retry iff the
// payment had acquired a route, the root isn't aborted, retries_left
// is positive, and the failure is one the classifier didn't mark
// terminal for this payment.
var RetryModifier = NewModifier("retry", retryInit, retryStep)

func retryInit(p *Payment) interface{} {
	if p.Parent == nil {
		return &retryData{retriesLeft: defaultRetryBudget}
	}
	parentData := p.Parent.ModifierData(RetryModifier).(*retryData)
	return &retryData{retriesLeft: parentData.retriesLeft - 1}
}

func retryStep(data interface{}, p *Payment) {
	defer Continue(p)

	if p.currentStep() != StepFailed {
		return
	}

	rd := data.(*retryData)
	if !canRetry(p, rd) {
		return
	}

	// The child's own Init reads this payment's retriesLeft and
	// applies the -1, so spawning itself doesn't need to mutate rd.
	child := newChild(p, p.Amount, p.FeeBudget, p.CLTVBudget)
	p.setStep(StepRetry)

	if RetryPacer == nil {
		go Start(child)
		return
	}

	go func() {
		<-RetryPacer.Ticks()
		Start(child)
	}()
}

// canRetry implements spec.md §4.F-H's retry predicate: "payment had a
// route, root is not aborted, retries_left > 0, and failcode-dependent
// payment_can_retry(p) is true". The classifier already encodes the
// only unconditionally-terminal case (destination-terminal failures)
// into root.abort, so the only additional failcode-dependent veto here
// is a payment that never got far enough to acquire a route at all.
func canRetry(p *Payment, rd *retryData) bool {
	if p.Route == nil {
		return false
	}
	if p.State().Aborted() {
		return false
	}
	if rd.retriesLeft <= 0 {
		return false
	}
	return true
}
