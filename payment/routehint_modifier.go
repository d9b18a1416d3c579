package payment

import (
	"github.com/go-errors/errors"
	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/route"
)

var errRouteHintEmptyBase = errors.New("routehint: cannot stitch onto an empty base route")

// routingMaxHops bounds how long a getroute path may be; routehints
// are trimmed to at most half of this, per spec.md §4.F-H "trim any
// to ≤ ROUTING_MAX_HOPS/2 hops".
const routingMaxHops = maxRouteHops

type routehintData struct {
	// filtered holds this payment's trimmed candidate routehints.
	filtered [][]RouteHintHop

	// chosen is the routehint this payment picked at INITIALIZED, if
	// any, remembered so GOT_ROUTE can stitch it onto the route.
	chosen []RouteHintHop
}

// RouteHintModifier implements spec.md §4.F-H's routehint modifier:
// at construction of every payment carrying an Invoice (Init) it
// filters the invoice's routehints; on
// every payment's INITIALIZED it picks the first non-excluded
// routehint and redirects getroute at it; on GOT_ROUTE it stitches the
// hint's hops onto the tail of the returned route.
var RouteHintModifier = NewModifier("routehint", routehintInit, routehintStep)

func routehintInit(p *Payment) interface{} {
	d := &routehintData{}
	if p.Invoice != nil {
		d.filtered = filterRouteHints(p, p.Invoice.RouteHints)
	}
	return d
}

func routehintStep(data interface{}, p *Payment) {
	defer Continue(p)

	rd := data.(*routehintData)

	switch p.currentStep() {
	case StepInitialized:
		chosen := firstNonExcluded(p, rd.filtered)
		if chosen == nil {
			return
		}

		rd.chosen = chosen
		p.GetRouteDestination = chosen[0].NodeID

		fee, delay := hintOverhead(chosen, p.Amount)
		p.GetRouteAmount = p.Amount + fee
		p.GetRouteCLTV = p.CLTVBudget + delay

	case StepGotRoute:
		if rd.chosen == nil {
			return
		}
		stitched, err := stitchRouteHint(p.Route, rd.chosen, p.Amount, p.Destination)
		if err != nil {
			failInternal(p, err)
			return
		}
		p.Route = stitched
	}
}

// filterRouteHints implements the routehint filtering step, run from
// routehintInit for each payment: strip a leading hop that is our own
// node, drop hints left empty, and trim the rest to at most
// routingMaxHops/2 hops.
func filterRouteHints(p *Payment, hints [][]RouteHintHop) [][]RouteHintHop {
	local := p.State().LocalNodeID

	var out [][]RouteHintHop
	for _, h := range hints {
		if len(h) == 0 {
			continue
		}
		if h[0].NodeID == local {
			h = h[1:]
			if len(h) == 0 {
				continue
			}
		}
		if len(h) > routingMaxHops/2 {
			h = h[:routingMaxHops/2]
		}
		out = append(out, h)
	}
	return out
}

// firstNonExcluded returns the first candidate hint whose entry node
// is not in the root's excluded-node set.
func firstNonExcluded(p *Payment, hints [][]RouteHintHop) []RouteHintHop {
	excluded := p.State().ExcludedNodes()
	excludedSet := make(map[route.Vertex]struct{}, len(excluded))
	for _, v := range excluded {
		excludedSet[v] = struct{}{}
	}

	for _, h := range hints {
		if _, bad := excludedSet[h[0].NodeID]; bad {
			continue
		}
		return h
	}
	return nil
}

// hintOverhead sums the hint's per-hop forwarding fees, evaluated
// against the final delivery amount, plus the summed CLTV deltas, per
// spec.md §4.F-H "inflate amount by per-hop fees of the hint, extend
// cltv by sum of hint delays".
func hintOverhead(hint []RouteHintHop, finalAmount lnwire.MilliSatoshi) (lnwire.MilliSatoshi, uint32) {
	var fee lnwire.MilliSatoshi
	var cltv uint32
	for _, h := range hint {
		fee += hopFee(h, finalAmount)
		cltv += uint32(h.CLTVExpiryDelta)
	}
	return fee, cltv
}

func hopFee(h RouteHintHop, amount lnwire.MilliSatoshi) lnwire.MilliSatoshi {
	proportional := uint64(amount) * uint64(h.FeeProportionalMillionths) / 1_000_000
	return h.FeeBaseMsat + lnwire.MilliSatoshi(proportional)
}

// stitchRouteHint implements the GOT_ROUTE side of spec.md §4.F-H's
// routehint modifier: the router's reply ends at hint[0] (the
// redirected getroute.destination); this appends the hint's remaining
// hops, recomputing each spliced hop's forward amount and outgoing
// delay by walking the hint backward from the true final destination,
// and recomputing direction bits via node_id_cmp for every spliced
// channel.
func stitchRouteHint(base route.Route, hint []RouteHintHop,
	finalAmount lnwire.MilliSatoshi, finalDest route.Vertex) (route.Route, error) {

	if len(base) == 0 {
		return nil, errRouteHintEmptyBase
	}

	k := len(hint)
	amountAfter := make([]lnwire.MilliSatoshi, k+1)
	delayAfter := make([]uint32, k+1)
	amountAfter[k] = finalAmount
	delayAfter[k] = 0

	for i := k - 1; i >= 0; i-- {
		amountAfter[i] = amountAfter[i+1] + hopFee(hint[i], amountAfter[i+1])
		delayAfter[i] = delayAfter[i+1] + uint32(hint[i].CLTVExpiryDelta)
	}

	out := make(route.Route, len(base)-1, len(base)+k)
	copy(out, base[:len(base)-1])

	// The node sequence from the last router-returned hop through the
	// hint chain to the real final destination, used to recompute
	// direction bits for every spliced channel.
	nodes := make([]route.Vertex, 0, k+2)
	nodes = append(nodes, base[len(base)-1].NodeID)
	for _, h := range hint {
		nodes = append(nodes, h.NodeID)
	}
	nodes = append(nodes, finalDest)

	// base[len(base)-1] is hint[0]'s own node; it stops being the
	// final hop and becomes a forwarding step to hint[1] (or the true
	// destination if k==1).
	last := base[len(base)-1]
	last.Amount = amountAfter[1]
	last.Delay = delayAfter[1]
	last.Direction = route.Direction(nodes[0], nodes[1])
	last.Style = route.Legacy
	out = append(out, last)

	for i := 1; i < k; i++ {
		out = append(out, route.Hop{
			NodeID:         hint[i].NodeID,
			ShortChannelID: hint[i].ShortChannelID,
			Direction:      route.Direction(nodes[i], nodes[i+1]),
			Amount:         amountAfter[i+1],
			Delay:          delayAfter[i+1],
			Style:          route.Legacy,
		})
	}

	return out, nil
}
