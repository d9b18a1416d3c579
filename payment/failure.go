package payment

// FailCode is a BOLT4-style per-hop onion failure code. The four
// high bits carry flags (BADONION, PERM, NODE, UPDATE); the
// classifier in spec.md §4.I keys off of both the flags and the exact
// code.
type FailCode uint16

const (
	flagBadOnion FailCode = 0x8000
	flagPerm     FailCode = 0x4000
	flagNode     FailCode = 0x2000
	flagUpdate   FailCode = 0x1000

	// NodeErrorMin is the lowest failcode value carrying the NODE
	// flag; spec.md §4.J "failure.failcode < NODE_ERROR_MIN" uses this
	// as the ROUTE_NOT_FOUND threshold.
	NodeErrorMin FailCode = flagNode

	InvalidRealm                     FailCode = flagPerm | 1
	TemporaryNodeFailure              FailCode = flagNode | 2
	PermanentNodeFailure              FailCode = flagPerm | flagNode | 2
	RequiredNodeFeatureMissing        FailCode = flagPerm | flagNode | 3
	InvalidOnionVersion               FailCode = flagBadOnion | flagPerm | 4
	InvalidOnionHMAC                  FailCode = flagBadOnion | flagPerm | 5
	InvalidOnionKey                   FailCode = flagBadOnion | flagPerm | 6
	TemporaryChannelFailure           FailCode = flagUpdate | 7
	PermanentChannelFailure           FailCode = flagPerm | 8
	RequiredChannelFeatureMissing     FailCode = flagPerm | 9
	UnknownNextPeer                   FailCode = flagPerm | 10
	AmountBelowMinimum                FailCode = flagUpdate | 11
	FeeInsufficient                   FailCode = flagUpdate | 12
	IncorrectCLTVExpiry               FailCode = flagUpdate | 13
	ExpiryTooSoon                     FailCode = flagUpdate | 14
	IncorrectOrUnknownPaymentDetails  FailCode = flagPerm | 15
	FinalExpiryTooSoon                FailCode = 17
	FinalIncorrectCLTVExpiry          FailCode = 18
	FinalIncorrectHTLCAmount          FailCode = 19
	ChannelDisabled                   FailCode = flagUpdate | 20
	ExpiryTooFar                      FailCode = 21
	InvalidOnionPayload               FailCode = flagPerm | 22
	MPPTimeout                        FailCode = 23

	// RouteNotFound is a local, non-wire failcode: the classifier's
	// own synthesized failure when no route could ever be acquired, or
	// when the tree's highest failure never rose above NodeErrorMin
	// (spec.md §4.J "Finished decision at root").
	RouteNotFound FailCode = 0
	// Internal and BudgetExceeded are local, non-wire failcodes kept
	// deliberately below NodeErrorMin: spec.md §8 scenario S2 expects a
	// run of budget-exceeded failures across all retries to still
	// surface as ROUTE_NOT_FOUND once retries are exhausted, exactly
	// like never having acquired a route at all.
	//
	// Internal is for a collaborator that errored or returned
	// malformed data (spec.md §7 "internal").
	Internal FailCode = 1
	// BudgetExceeded is for the pre-send fee/CLTV budget check in
	// spec.md §4.F-H "Route acquisition" (spec.md §7
	// "budget-exceeded").
	BudgetExceeded FailCode = 2
)

// Name returns the wire failcodename for f, matching the names used
// throughout spec.md §4.I and §6.
func (f FailCode) Name() string {
	switch f {
	case InvalidRealm:
		return "invalid_realm"
	case TemporaryNodeFailure:
		return "temporary_node_failure"
	case PermanentNodeFailure:
		return "permanent_node_failure"
	case RequiredNodeFeatureMissing:
		return "required_node_feature_missing"
	case InvalidOnionVersion:
		return "invalid_onion_version"
	case InvalidOnionHMAC:
		return "invalid_onion_hmac"
	case InvalidOnionKey:
		return "invalid_onion_key"
	case TemporaryChannelFailure:
		return "temporary_channel_failure"
	case PermanentChannelFailure:
		return "permanent_channel_failure"
	case RequiredChannelFeatureMissing:
		return "required_channel_feature_missing"
	case UnknownNextPeer:
		return "unknown_next_peer"
	case AmountBelowMinimum:
		return "amount_below_minimum"
	case FeeInsufficient:
		return "fee_insufficient"
	case IncorrectCLTVExpiry:
		return "incorrect_cltv_expiry"
	case ExpiryTooSoon:
		return "expiry_too_soon"
	case IncorrectOrUnknownPaymentDetails:
		return "incorrect_or_unknown_payment_details"
	case FinalExpiryTooSoon:
		return "final_expiry_too_soon"
	case FinalIncorrectCLTVExpiry:
		return "final_incorrect_cltv_expiry"
	case FinalIncorrectHTLCAmount:
		return "final_incorrect_htlc_amount"
	case ChannelDisabled:
		return "channel_disabled"
	case ExpiryTooFar:
		return "expiry_too_far"
	case InvalidOnionPayload:
		return "invalid_onion_payload"
	case MPPTimeout:
		return "mpp_timeout"
	case RouteNotFound:
		return "route_not_found"
	case Internal:
		return "internal"
	case BudgetExceeded:
		return "budget_exceeded"
	default:
		return "unknown"
	}
}

// HopFailure is the post-send failure report from the HTLC dispatch
// collaborator: the erring hop index into the route that was sent,
// and the failcode it reported.
type HopFailure struct {
	ErringIndex int
	Code        FailCode
	RawMessage  []byte
}

// classify applies spec.md §4.F-H "Post-send classification" to a
// single HopFailure observed on p, mutating root state as needed and
// returning the Result that should be attached to p.
func classify(p *Payment, hf HopFailure) *Result {
	root := p.State()
	r := p.Route

	res := &Result{
		State:        ResultFailed,
		FailCode:     hf.Code,
		FailCodeName: hf.Code.Name(),
		RawMessage:   hf.RawMessage,
	}

	idx := hf.ErringIndex
	if idx >= 0 && idx < len(r) {
		v := idx
		res.ErringIndex = &v
		node := r[idx].NodeID
		res.ErringNode = &node
		scid := r[idx].ShortChannelID
		res.ErringChannel = &scid
		dir := r[idx].Direction
		res.ErringDirection = &dir
	}

	switch hf.Code {
	case PermanentChannelFailure, ChannelDisabled, UnknownNextPeer,
		RequiredChannelFeatureMissing:
		if idx >= 0 && idx < len(r) {
			hop := r[idx]
			root.AddHint(hop.ShortChannelID, hop.Direction, false, 0)
		}

	case TemporaryChannelFailure:
		if idx >= 0 && idx < len(r) {
			hop := r[idx]
			capacity := hop.Amount * 3 / 4
			root.AddHint(hop.ShortChannelID, hop.Direction, true, capacity)
		}

	case InvalidOnionVersion, InvalidOnionHMAC, InvalidOnionKey,
		PermanentNodeFailure, TemporaryNodeFailure,
		RequiredNodeFeatureMissing, InvalidRealm, InvalidOnionPayload:
		// The reporting node is route[i-1], the node that decrypted
		// this layer and found the problem with the next one. When
		// i==0 there is no upstream node in our own route to blame
		// (we are route[-1]), so nothing is excluded.
		if idx-1 >= 0 && idx-1 < len(r) {
			root.ExcludeNode(r[idx-1].NodeID)
		}

	case IncorrectOrUnknownPaymentDetails, MPPTimeout:
		root.Abort()

	case AmountBelowMinimum, ExpiryTooSoon, ExpiryTooFar, FeeInsufficient,
		IncorrectCLTVExpiry, FinalExpiryTooSoon, FinalIncorrectCLTVExpiry,
		FinalIncorrectHTLCAmount:
		// No state change; allow retry.
	}

	return res
}
