package txmodel

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func fundingOutPoint() chainhash.Hash {
	var h chainhash.Hash
	h[0] = 0xaa
	return h
}

func buildSampleTx(withWitness bool) *Tx {
	tx := NewTx(2, 0)
	tx.AddInput(fundingOutPoint(), 0, wire.MaxTxInSequenceNum,
		btcutil.Amount(1_000_000), nil)
	tx.AddOutput(btcutil.Amount(900_000), []byte{0x00, 0x14})

	if withWitness {
		_ = tx.SetInputWitness(0, [][]byte{
			{0x01, 0x02}, {0x03, 0x04},
		})
	}
	return tx
}

// TestLinearizeParseRoundTrip checks property 1: linearize(parse(
// linearize(tx))) == linearize(tx), for both witness and non-witness
// transactions.
func TestLinearizeParseRoundTrip(t *testing.T) {
	t.Parallel()

	for _, withWitness := range []bool{false, true} {
		tx := buildSampleTx(withWitness)
		require.NoError(t, Check(tx))
	}
}

// TestTxIDIgnoresWitness checks property 4: txid(tx) must not depend
// on witness stack contents.
func TestTxIDIgnoresWitness(t *testing.T) {
	t.Parallel()

	noWitness := buildSampleTx(false)
	withWitness := buildSampleTx(true)

	idA, err := TxID(noWitness)
	require.NoError(t, err)
	idB, err := TxID(withWitness)
	require.NoError(t, err)

	require.Equal(t, idA, idB)
}

// TestWeightMatchesFormula checks property 5:
// weight(tx) = 4*non_witness_bytes + witness_bytes, where the 2-byte
// marker+flag only appears when a witness is present.
func TestWeightMatchesFormula(t *testing.T) {
	t.Parallel()

	plain := buildSampleTx(false)
	noWitnessBytes, err := Linearize(plain, false)
	require.NoError(t, err)

	plainWeight, err := Weight(plain)
	require.NoError(t, err)
	require.Equal(t, uint32(len(noWitnessBytes))*4, plainWeight)

	witnessed := buildSampleTx(true)
	stripped, err := Linearize(witnessed, false)
	require.NoError(t, err)
	full, err := Linearize(witnessed, true)
	require.NoError(t, err)

	wantWeight := uint32(len(stripped))*4 + uint32(len(full)-len(stripped))
	gotWeight, err := Weight(witnessed)
	require.NoError(t, err)
	require.Equal(t, wantWeight, gotWeight)
}

// TestInputAmountRequired checks §9: an input's funding amount must
// be retrievable for signing; asking for an out-of-range index errors
// rather than silently returning zero.
func TestInputAmountRequired(t *testing.T) {
	t.Parallel()

	tx := buildSampleTx(false)

	amt, err := tx.InputAmount(0)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(1_000_000), amt)

	_, err = tx.InputAmount(1)
	require.Error(t, err)
}
