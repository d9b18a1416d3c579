package onion

import (
	"encoding/binary"
	"testing"

	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/route"
	"github.com/stretchr/testify/require"
)

func legacyRoute() route.Route {
	return route.Route{
		{
			NodeID:         route.Vertex{0x01},
			Amount:         1010,
			Delay:          50,
			Style:          route.Legacy,
			ShortChannelID: lnwire.ShortChannelID{BlockHeight: 1, TxIndex: 2, TxPosition: 3},
		},
		{
			NodeID: route.Vertex{0x02},
			Amount: 1000,
			Delay:  40,
			Style:  route.Legacy,
		},
	}
}

func TestBuildPayloadsLegacyNonFinalForwardsNextHop(t *testing.T) {
	t.Parallel()

	r := legacyRoute()
	hops, err := BuildPayloads(r, 700_000, nil, 0)
	require.NoError(t, err)
	require.Len(t, hops, 2)

	// Non-final hop 0 must encode hop 1's amount/scid/cltv.
	p := hops[0].Payload
	require.Len(t, p, legacyPayloadLength)
	require.Equal(t, byte(legacyRealm), p[0])

	gotSCID := binary.BigEndian.Uint64(p[1:9])
	require.Equal(t, r[1].ShortChannelID.ToUint64(), gotSCID)

	gotAmt := binary.BigEndian.Uint64(p[9:17])
	require.Equal(t, uint64(r[1].Amount), gotAmt)

	gotCLTV := binary.BigEndian.Uint32(p[17:21])
	require.Equal(t, uint32(700_000)+r[1].Delay, gotCLTV)

	for _, b := range p[21:33] {
		require.Zero(t, b)
	}
}

func TestBuildPayloadsLegacyFinalHopUsesZeroSCID(t *testing.T) {
	t.Parallel()

	r := legacyRoute()
	hops, err := BuildPayloads(r, 700_000, nil, 0)
	require.NoError(t, err)

	final := hops[len(hops)-1].Payload
	gotSCID := binary.BigEndian.Uint64(final[1:9])
	require.Zero(t, gotSCID)

	gotCLTV := binary.BigEndian.Uint32(final[17:21])
	require.Equal(t, uint32(700_000)+r.FinalHop().Delay, gotCLTV)
}

func TestBuildPayloadsRejectsEmptyRoute(t *testing.T) {
	t.Parallel()

	_, err := BuildPayloads(nil, 0, nil, 0)
	require.Error(t, err)
}

func TestAssociatedDataIsPaymentHash(t *testing.T) {
	t.Parallel()

	var hash [32]byte
	hash[0] = 0xff

	assoc := AssociatedData(hash)
	require.Equal(t, hash[:], assoc)
}
