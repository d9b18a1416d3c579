package channel

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/stretchr/testify/require"
)

func randBasepoints(t *testing.T) Basepoints {
	t.Helper()

	pub := func() *btcec.PublicKey {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		return priv.PubKey()
	}

	return Basepoints{
		Payment:    pub(),
		Delay:      pub(),
		Revocation: pub(),
		Htlc:       pub(),
	}
}

func TestNewInitialChannel(t *testing.T) {
	t.Parallel()

	localPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	remotePriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	funding := btcutil.Amount(2_000_000)
	localMsat := lnwire.NewMSatFromSatoshis(1_000_000)

	c, err := New(
		OutPoint{Txid: chainhash.Hash{0x01}, Vout: 0},
		funding, localMsat, 253,
		Config{DustLimit: 546, ChanReserve: 10_000, CsvDelay: 144},
		Config{DustLimit: 546, ChanReserve: 10_000, CsvDelay: 144},
		randBasepoints(t), randBasepoints(t),
		localPriv.PubKey(), remotePriv.PubKey(), Local,
	)
	require.NoError(t, err)

	// local + remote owed must equal the funding amount in msat.
	total := c.View[Local].Owed[Local] + c.View[Local].Owed[Remote]
	require.Equal(t, lnwire.NewMSatFromSatoshis(funding), total)

	// The obscurer must fit in 48 bits.
	require.Zero(t, c.CommitmentNumberObscurer&^((uint64(1)<<48)-1))
}

func TestNewInitialChannelRejectsOverdrawnLocalBalance(t *testing.T) {
	t.Parallel()

	localPriv, _ := btcec.NewPrivateKey()
	remotePriv, _ := btcec.NewPrivateKey()

	funding := btcutil.Amount(1_000)
	overdrawn := lnwire.NewMSatFromSatoshis(2_000)

	_, err := New(
		OutPoint{Txid: chainhash.Hash{0x02}, Vout: 1},
		funding, overdrawn, 253,
		Config{}, Config{},
		randBasepoints(t), randBasepoints(t),
		localPriv.PubKey(), remotePriv.PubKey(), Remote,
	)
	require.Error(t, err)
}

func TestInitialChannelTxBuildsFundingSpend(t *testing.T) {
	t.Parallel()

	localPriv, _ := btcec.NewPrivateKey()
	remotePriv, _ := btcec.NewPrivateKey()
	commitPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	cfg := Config{DustLimit: 546, ChanReserve: 10_000, CsvDelay: 144}
	c, err := New(
		OutPoint{Txid: chainhash.Hash{0x03}, Vout: 2},
		btcutil.Amount(500_000), lnwire.NewMSatFromSatoshis(250_000), 253,
		cfg, cfg,
		randBasepoints(t), randBasepoints(t),
		localPriv.PubKey(), remotePriv.PubKey(), Local,
	)
	require.NoError(t, err)

	wscript, tx, err := InitialChannelTx(c, Local, commitPriv.PubKey())
	require.NoError(t, err)
	require.NotEmpty(t, wscript)
	require.Equal(t, 1, len(tx.MsgTx().TxIn))
	require.Equal(t, c.FundingOutpoint.Vout, tx.MsgTx().TxIn[0].PreviousOutPoint.Index)

	// Both sides are well above dust, so both outputs are present: the
	// CSV-delayed to_local P2WSH and the plain to_remote P2WKH.
	require.Equal(t, 2, len(tx.MsgTx().TxOut))

	toLocalOut := tx.MsgTx().TxOut[0]
	require.Equal(t, int64(250_000), toLocalOut.Value)
	require.True(t, txscript.IsPayToWitnessScriptHash(toLocalOut.PkScript))

	toRemoteOut := tx.MsgTx().TxOut[1]
	require.Equal(t, int64(250_000), toRemoteOut.Value)
	require.True(t, txscript.IsPayToWitnessPubKeyHash(toRemoteOut.PkScript))
}

func TestInitialChannelTxDropsDustOutput(t *testing.T) {
	t.Parallel()

	localPriv, _ := btcec.NewPrivateKey()
	remotePriv, _ := btcec.NewPrivateKey()
	commitPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	cfg := Config{DustLimit: 546, ChanReserve: 10_000, CsvDelay: 144}
	c, err := New(
		OutPoint{Txid: chainhash.Hash{0x04}, Vout: 0},
		btcutil.Amount(500_000), lnwire.NewMSatFromSatoshis(0), 253,
		cfg, cfg,
		randBasepoints(t), randBasepoints(t),
		localPriv.PubKey(), remotePriv.PubKey(), Local,
	)
	require.NoError(t, err)

	_, tx, err := InitialChannelTx(c, Local, commitPriv.PubKey())
	require.NoError(t, err)

	// The local balance is zero, below the dust limit, so only the
	// to_remote output should be present.
	require.Equal(t, 1, len(tx.MsgTx().TxOut))
	require.True(t, txscript.IsPayToWitnessPubKeyHash(tx.MsgTx().TxOut[0].PkScript))
}

func TestInitialChannelTxFailsOnMissingBasepoint(t *testing.T) {
	t.Parallel()

	localPriv, _ := btcec.NewPrivateKey()
	remotePriv, _ := btcec.NewPrivateKey()
	commitPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	cfg := Config{DustLimit: 546, ChanReserve: 10_000, CsvDelay: 144}
	remoteBasepoints := randBasepoints(t)
	remoteBasepoints.Revocation = nil

	c, err := New(
		OutPoint{Txid: chainhash.Hash{0x05}, Vout: 0},
		btcutil.Amount(500_000), lnwire.NewMSatFromSatoshis(250_000), 253,
		cfg, cfg,
		randBasepoints(t), remoteBasepoints,
		localPriv.PubKey(), remotePriv.PubKey(), Local,
	)
	require.NoError(t, err)

	_, _, err = InitialChannelTx(c, Local, commitPriv.PubKey())
	require.Error(t, err)
}
