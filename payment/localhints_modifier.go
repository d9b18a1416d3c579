package payment

import "context"

type localHintsData struct {
	seeded bool
}

// LocalHintsModifier implements spec.md §4.F-H's local-hints modifier
// (root-only, pre-getroute): on the root's first INITIALIZED pass it
// fetches our own peer channel states and seeds the root's channel
// hints from them, before getroute ever runs.
var LocalHintsModifier = NewModifier("local-hints", localHintsInit, localHintsStep)

func localHintsInit(p *Payment) interface{} {
	return &localHintsData{}
}

func localHintsStep(data interface{}, p *Payment) {
	defer Continue(p)

	if p.Parent != nil || p.currentStep() != StepInitialized {
		return
	}

	ld := data.(*localHintsData)
	if ld.seeded {
		return
	}
	ld.seeded = true

	peers, err := p.Collaborators().Topology.ListPeers(context.Background())
	if err != nil {
		// A failed local-topology fetch shouldn't fail the whole
		// payment; getroute will simply proceed without local hint
		// seeding, falling back to whatever the routing collaborator
		// already knows.
		log.Warnf("payment %d: listpeers failed, skipping local hint seed: %v", p.ID, err)
		return
	}

	root := p.State()
	for _, peer := range peers {
		root.AddHint(peer.SCID, peer.Direction, peer.Connected, peer.SpendableMsat)
	}
}
