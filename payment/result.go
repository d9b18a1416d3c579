package payment

import (
	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/route"
)

// ResultState is the payment-result state enum from spec.md §3
// "Payment result".
type ResultState int

const (
	ResultPending ResultState = iota
	ResultComplete
	ResultFailed
)

func (s ResultState) String() string {
	switch s {
	case ResultPending:
		return "pending"
	case ResultComplete:
		return "complete"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is one payment node's outcome, spec.md §3 "Payment result".
type Result struct {
	State        ResultState
	FailCode     FailCode
	FailCodeName string
	Message      string

	ErringIndex     *int
	ErringNode      *route.Vertex
	ErringChannel   *lnwire.ShortChannelID
	ErringDirection *uint8
	RawMessage      []byte

	AmountSent       lnwire.MilliSatoshi
	PaymentPreimage  *[32]byte
}
