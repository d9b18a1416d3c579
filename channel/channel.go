// Package channel implements spec.md §4.C: the immutable channel
// seed used to construct the initial (HTLC-free) commitment
// transaction. It is the Go counterpart of common/initial_channel.c,
// generalized the way lnd's lnwallet.LightningChannel holds
// LocalChanCfg/RemoteChanCfg/basepoints, but stripped down to the
// single htlc-free commitment this spec needs: no HTLC view, no
// state-update machinery.
package channel

import (
	"bytes"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/go-errors/errors"
	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/txmodel"
)

// Side identifies which party's perspective a value belongs to.
type Side int

const (
	// Local is our own side of the channel.
	Local Side = iota
	// Remote is the counterparty's side of the channel.
	Remote
)

// other returns the opposite side, mirroring the original's `!side`.
func (s Side) other() Side {
	if s == Local {
		return Remote
	}
	return Local
}

// OutPoint is the funding transaction's outpoint.
type OutPoint struct {
	Txid chainhash.Hash
	Vout uint32
}

// Config holds one side's channel parameters, a trimmed version of
// lnd's ChannelConfig limited to the fields the initial, htlc-free
// commitment needs.
type Config struct {
	DustLimit        btcutil.Amount
	ChanReserve      btcutil.Amount
	CsvDelay         uint16
	MaxAcceptedHtlcs uint16
}

// Basepoints holds the public basepoints a side reveals at channel
// open, from which per-commitment keys are later derived. Payment
// feeds the obscurer derivation and the to_remote key; Delay and
// Revocation feed the to_local script's keys; Htlc is carried but not
// used. The 2-of-2 funding script uses the funding keys, not these
// basepoints.
type Basepoints struct {
	Payment    *btcec.PublicKey
	Delay      *btcec.PublicKey
	Revocation *btcec.PublicKey
	Htlc       *btcec.PublicKey
}

// View holds one side's observation of the channel balances and
// feerate, matching struct channel_view in the original.
type View struct {
	FeeratePerKw uint32
	Owed         [2]lnwire.MilliSatoshi // indexed by Side
}

// InitialChannel is the immutable seed for the very first (htlc-free)
// commitment transaction, built once at channel-open time and never
// mutated afterward — spec.md §3 "Channel seed (initial channel)".
type InitialChannel struct {
	FundingOutpoint OutPoint
	FundingAmount   btcutil.Amount

	Config      [2]Config      // indexed by Side
	FundingKey  [2]*btcec.PublicKey
	Basepoints  [2]Basepoints
	View        [2]View
	Funder      Side

	// CommitmentNumberObscurer is the lower 48 bits of
	// SHA256(open_basepoint || accept_basepoint), XORed into the
	// commitment number to hide channel progress on-chain.
	CommitmentNumberObscurer uint64
}

// New constructs the invariant InitialChannel record, the Go
// equivalent of new_initial_channel(). It validates that
// localMsat + remoteMsat == funding converted to millisatoshi and
// derives the commitment-number obscurer from the funder's and
// fundee's payment basepoints, in that order (open before accept).
func New(fundingOutpoint OutPoint, funding btcutil.Amount,
	localMsat lnwire.MilliSatoshi, feeratePerKw uint32,
	localCfg, remoteCfg Config, localBasepoints, remoteBasepoints Basepoints,
	localFundingKey, remoteFundingKey *btcec.PublicKey,
	funder Side) (*InitialChannel, error) {

	totalMsat := lnwire.NewMSatFromSatoshis(funding)
	if localMsat > totalMsat {
		return nil, errors.Errorf(
			"local balance %d msat exceeds funding %d msat",
			localMsat, totalMsat)
	}
	remoteMsat := totalMsat - localMsat

	c := &InitialChannel{
		FundingOutpoint: fundingOutpoint,
		FundingAmount:   funding,
		Funder:          funder,
	}
	c.Config[Local] = localCfg
	c.Config[Remote] = remoteCfg
	c.FundingKey[Local] = localFundingKey
	c.FundingKey[Remote] = remoteFundingKey
	c.Basepoints[Local] = localBasepoints
	c.Basepoints[Remote] = remoteBasepoints

	c.View[Local] = View{FeeratePerKw: feeratePerKw}
	c.View[Remote] = View{FeeratePerKw: feeratePerKw}
	c.View[Local].Owed[Local] = localMsat
	c.View[Remote].Owed[Local] = localMsat
	c.View[Local].Owed[Remote] = remoteMsat
	c.View[Remote].Owed[Remote] = remoteMsat

	funderBasepoint := c.Basepoints[funder].Payment
	fundeeBasepoint := c.Basepoints[funder.other()].Payment
	obscurer, err := commitNumberObscurer(funderBasepoint, fundeeBasepoint)
	if err != nil {
		return nil, err
	}
	c.CommitmentNumberObscurer = obscurer

	return c, nil
}

// commitNumberObscurer derives the 48-bit obscurer from two
// basepoints, the Go equivalent of commit_number_obscurer().
func commitNumberObscurer(openBasepoint, acceptBasepoint *btcec.PublicKey) (uint64, error) {
	if openBasepoint == nil || acceptBasepoint == nil {
		return 0, errors.New("missing payment basepoint")
	}

	h := sha256.New()
	h.Write(openBasepoint.SerializeCompressed())
	h.Write(acceptBasepoint.SerializeCompressed())
	sum := h.Sum(nil)

	// Lower 48 bits: the last six bytes of the digest.
	var obscurer uint64
	for _, b := range sum[len(sum)-6:] {
		obscurer = (obscurer << 8) | uint64(b)
	}
	return obscurer, nil
}

// multisig2of2 builds the 2-of-2 witness script for the two funding
// pubkeys, sorted lexicographically as BIP67 / the original's
// bitcoin_redeem_2of2 requires.
func multisig2of2(a, b *btcec.PublicKey) ([]byte, error) {
	aBytes := a.SerializeCompressed()
	bBytes := b.SerializeCompressed()

	first, second := aBytes, bBytes
	if bytes.Compare(aBytes, bBytes) > 0 {
		first, second = bBytes, aBytes
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_2)
	builder.AddData(first)
	builder.AddData(second)
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	return builder.Script()
}

// commitmentKeyRing holds the per-commitment keys needed to build
// side's to_local/to_remote commitment outputs, derived from the
// per-commitment point side has revealed for this commitment. Adapted
// from the TweakPubKey/DeriveRevocationPubkey call sites in
// lnwallet/channel.go's deriveCommitmentKeys.
type commitmentKeyRing struct {
	delayKey      *btcec.PublicKey
	noDelayKey    *btcec.PublicKey
	revocationKey *btcec.PublicKey
}

// tweakPubKey derives a per-commitment public key from a revealed base
// point and the per-commitment point, homomorphically shifting
// basePoint by SHA256(commitPoint || basePoint) so the key used in
// each commitment is unlinkable to the base point revealed at channel
// open. Used for the delay key and the no-delay (counterparty
// payment) key.
func tweakPubKey(basePoint, commitPoint *btcec.PublicKey) (*btcec.PublicKey, error) {
	if basePoint == nil || commitPoint == nil {
		return nil, errors.New("missing base point or commitment point")
	}

	var tweakScalar secp256k1.ModNScalar
	tweakScalar.SetBytes(pointTweak(commitPoint, basePoint))

	var tweakPoint, baseJ, sum secp256k1.JacobianPoint
	basePoint.AsJacobian(&baseJ)
	secp256k1.ScalarBaseMultNonConst(&tweakScalar, &tweakPoint)
	secp256k1.AddNonConst(&baseJ, &tweakPoint, &sum)
	sum.ToAffine()

	result := secp256k1.NewPublicKey(&sum.X, &sum.Y)
	return btcec.ParsePubKey(result.SerializeCompressed())
}

// deriveRevocationPubkey derives the revocation public key for this
// commitment from the counterparty's revealed revocation base point
// and side's per-commitment point:
//
//	revocationKey := revocationBasePoint*SHA256(revocationBasePoint||commitPoint)
//	               + commitPoint*SHA256(commitPoint||revocationBasePoint)
//
// the two-term BOLT3 tweak, generalized from the single preimage-based
// addition lnwallet/script_utils.go's deriveRevocationPubkey performs
// once the revocation secret is later divulged: here only the point is
// known, not yet the preimage, so both terms are tweaked points rather
// than one tweaked point plus a bare scalar multiply of G.
func deriveRevocationPubkey(revocationBasePoint, commitPoint *btcec.PublicKey) (*btcec.PublicKey, error) {
	if revocationBasePoint == nil || commitPoint == nil {
		return nil, errors.New("missing revocation base point or commitment point")
	}

	var revocationTweak, commitTweak secp256k1.ModNScalar
	revocationTweak.SetBytes(pointTweak(revocationBasePoint, commitPoint))
	commitTweak.SetBytes(pointTweak(commitPoint, revocationBasePoint))

	var revocationBaseJ, commitJ, term1, term2, sum secp256k1.JacobianPoint
	revocationBasePoint.AsJacobian(&revocationBaseJ)
	commitPoint.AsJacobian(&commitJ)

	secp256k1.ScalarMultNonConst(&revocationTweak, &revocationBaseJ, &term1)
	secp256k1.ScalarMultNonConst(&commitTweak, &commitJ, &term2)
	secp256k1.AddNonConst(&term1, &term2, &sum)
	sum.ToAffine()

	result := secp256k1.NewPublicKey(&sum.X, &sum.Y)
	return btcec.ParsePubKey(result.SerializeCompressed())
}

// pointTweak returns SHA256(a || b) compressed-serialized.
func pointTweak(a, b *btcec.PublicKey) *[32]byte {
	h := sha256.New()
	h.Write(a.SerializeCompressed())
	h.Write(b.SerializeCompressed())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return &out
}

// deriveCommitmentKeys builds the key ring for side's commitment at
// the given per-commitment point: side's own delay key and the
// counterparty's no-delay and revocation keys, matching
// lnwallet/channel.go's deriveCommitmentKeys(commitPoint, isOurCommit,
// localChanCfg, remoteChanCfg) with isOurCommit == (side == the
// commitment's owner).
func deriveCommitmentKeys(c *InitialChannel, side Side, commitPoint *btcec.PublicKey) (*commitmentKeyRing, error) {
	other := side.other()

	delayKey, err := tweakPubKey(c.Basepoints[side].Delay, commitPoint)
	if err != nil {
		return nil, errors.WrapPrefix(err, "cannot derive delay key", 0)
	}
	noDelayKey, err := tweakPubKey(c.Basepoints[other].Payment, commitPoint)
	if err != nil {
		return nil, errors.WrapPrefix(err, "cannot derive no-delay key", 0)
	}
	revocationKey, err := deriveRevocationPubkey(c.Basepoints[other].Revocation, commitPoint)
	if err != nil {
		return nil, errors.WrapPrefix(err, "cannot derive revocation key", 0)
	}

	return &commitmentKeyRing{
		delayKey:      delayKey,
		noDelayKey:    noDelayKey,
		revocationKey: revocationKey,
	}, nil
}

// commitScriptToSelf builds the to_local output's witness script:
// spendable either immediately with the revocation key (if this
// commitment was revoked and broadcast anyway), or after csvTimeout
// blocks with the owner's delay key. Ported from
// lnwallet/script_utils.go's commitScriptToSelf.
func commitScriptToSelf(csvTimeout uint32, delayKey, revocationKey *btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddData(revocationKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddData(delayKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddInt64(int64(csvTimeout))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// witnessScriptHash generates a P2WSH output script paying to
// redeemScript, matching lnwallet/script_utils.go's witnessScriptHash.
func witnessScriptHash(redeemScript []byte) ([]byte, error) {
	scriptHash := sha256.Sum256(redeemScript)

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(scriptHash[:])
	return builder.Script()
}

// commitScriptUnencumbered builds the to_remote output's script: a
// plain P2WPKH paying key, spendable immediately with no CSV delay,
// matching lnwallet/script_utils.go's commitScriptUnencumbered.
func commitScriptUnencumbered(key *btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(btcutil.Hash160(key.SerializeCompressed()))
	return builder.Script()
}

// InitialChannelTx builds the witness script and the initial (htlc
// free, obscured-commit-number-0) commitment transaction for side,
// given its revealed per-commitment point. This is the Go equivalent
// of initial_channel_tx(): it derives the per-commitment key ring
// (failing if any key derivation fails, per spec.md 4.C), then builds
// the to_local output (CSV-delayed, revocable) and the to_remote
// output (immediately spendable), dropping either one that would be
// dust.
func InitialChannelTx(c *InitialChannel, side Side, perCommitmentPoint *btcec.PublicKey) (witnessScript []byte, tx *txmodel.Tx, err error) {
	witnessScript, err = multisig2of2(c.FundingKey[Local], c.FundingKey[Remote])
	if err != nil {
		return nil, nil, errors.WrapPrefix(err,
			"cannot derive 2-of-2 funding script", 0)
	}

	keyRing, err := deriveCommitmentKeys(c, side, perCommitmentPoint)
	if err != nil {
		return nil, nil, errors.WrapPrefix(err,
			"cannot derive commitment key ring", 0)
	}

	other := side.other()
	csvTimeout := uint32(c.Config[other].CsvDelay)

	toLocalScript, err := commitScriptToSelf(
		csvTimeout, keyRing.delayKey, keyRing.revocationKey,
	)
	if err != nil {
		return nil, nil, errors.WrapPrefix(err,
			"cannot build to_local script", 0)
	}
	toLocalPkScript, err := witnessScriptHash(toLocalScript)
	if err != nil {
		return nil, nil, errors.WrapPrefix(err,
			"cannot hash to_local witness script", 0)
	}

	toRemotePkScript, err := commitScriptUnencumbered(keyRing.noDelayKey)
	if err != nil {
		return nil, nil, errors.WrapPrefix(err,
			"cannot build to_remote script", 0)
	}

	tx = txmodel.NewTx(2, 0)
	tx.AddInput(
		c.FundingOutpoint.Txid, c.FundingOutpoint.Vout,
		wire.MaxTxInSequenceNum, c.FundingAmount, nil,
	)

	dustLimit := c.Config[side].DustLimit
	toLocalAmt := c.View[side].Owed[side].ToSatoshis()
	toRemoteAmt := c.View[side].Owed[other].ToSatoshis()

	if toLocalAmt >= dustLimit {
		tx.AddOutput(toLocalAmt, toLocalPkScript)
	}
	if toRemoteAmt >= dustLimit {
		tx.AddOutput(toRemoteAmt, toRemotePkScript)
	}

	return witnessScript, tx, nil
}
