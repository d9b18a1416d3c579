package metrics

import (
	"context"
	"time"

	"github.com/lightninglabs/paymentd/payment"
	"github.com/lightninglabs/paymentd/route"
)

// InstrumentedRouter wraps a payment.Router collaborator, timing every
// GetRoute call into the route-acquisition histogram without altering
// its behavior. Construct one per Collector and hand it to
// payment.Collaborators in place of the bare Router.
type InstrumentedRouter struct {
	Router    payment.Router
	Collector *Collector
}

// GetRoute implements payment.Router.
func (r InstrumentedRouter) GetRoute(ctx context.Context, req payment.RouteRequest) (route.Route, error) {
	start := time.Now()
	defer func() {
		r.Collector.ObserveRouteLatency(time.Since(start))
	}()
	return r.Router.GetRoute(ctx, req)
}
