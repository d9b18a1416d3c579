package payment

// InitFunc is invoked once per payment at construction, producing the
// per-payment data slot that StepFunc receives on every subsequent
// invocation for that same payment (spec.md §3 "Modifier
// registration").
type InitFunc func(p *Payment) interface{}

// StepFunc is invoked between every pair of consecutive states of p
// (spec.md §4.F-H). It MUST eventually call Continue(p) exactly once,
// synchronously before returning or later from a response callback
// (spec.md §5 "Suspension points").
type StepFunc func(data interface{}, p *Payment)

// Modifier is a named pair of callbacks, spec.md §4.G / §9 "Modifier
// pipeline without dynamic dispatch through vtables": each payment
// carries a data slot per modifier, looked up by the Modifier's own
// identity rather than by name at runtime.
type Modifier struct {
	Name string
	Init InitFunc
	Step StepFunc
}

// NewModifier constructs a named modifier; it is not entered into any
// process-wide registry, and a Modifier is never looked up by name.
// The returned pointer's
// identity is what Payment.ModifierData matches against, so callers
// should keep it (typically as a package-level var) rather than
// constructing a fresh Modifier value per payment.
func NewModifier(name string, init InitFunc, step StepFunc) *Modifier {
	return &Modifier{Name: name, Init: init, Step: step}
}
