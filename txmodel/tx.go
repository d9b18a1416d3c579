// Package txmodel provides the mutable transaction builder named in
// spec.md §4.B. The wire-format encoding itself is treated as the
// black-box encoder named in §1 and delegated to
// github.com/btcsuite/btcd/wire, which already implements BIP141/144
// segwit serialization bit for bit; this package is the thin layer on
// top that remembers each input's funding amount (needed later for
// BIP143 signing, per §9 "segregated witness signing preimage") and
// exposes the linearize/txid/weight/parse operations spec.md asks for.
package txmodel

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/go-errors/errors"
)

// witnessScaleFactor is the discount segwit data receives when
// computing transaction weight (BIP141).
const witnessScaleFactor = 4

// Tx is a mutable transaction builder. It owns a *wire.MsgTx and a
// parallel slice of per-input funding amounts, since nothing in the
// consensus serialization carries that information.
type Tx struct {
	msg *wire.MsgTx

	// inputAmounts[i] is the amount (in satoshis) of the output being
	// spent by TxIn i. It is required, not optional: §9 says pruning
	// it before signing MUST be rejected.
	inputAmounts []btcutil.Amount
}

// NewTx starts an empty transaction at the given version and
// locktime, inputs/outputs to be added via AddInput/AddOutput.
func NewTx(version int32, lockTime uint32) *Tx {
	msg := wire.NewMsgTx(version)
	msg.LockTime = lockTime
	return &Tx{msg: msg}
}

// AddInput appends a new input spending (txid, vout), returning its
// index. amount is the satoshi value of the output being spent; it is
// mandatory so that later signing has everything BIP143 needs without
// reaching back out to a UTXO set.
func (t *Tx) AddInput(txid chainhash.Hash, vout uint32, sequence uint32,
	amount btcutil.Amount, scriptSig []byte) int {

	outPoint := wire.NewOutPoint(&txid, vout)
	txIn := wire.NewTxIn(outPoint, scriptSig, nil)
	txIn.Sequence = sequence

	t.msg.AddTxIn(txIn)
	t.inputAmounts = append(t.inputAmounts, amount)

	return len(t.msg.TxIn) - 1
}

// AddOutput appends a new output, returning its index.
func (t *Tx) AddOutput(amount btcutil.Amount, scriptPubKey []byte) int {
	t.msg.AddTxOut(wire.NewTxOut(int64(amount), scriptPubKey))
	return len(t.msg.TxOut) - 1
}

// SetInputWitness sets the witness stack for input index.
func (t *Tx) SetInputWitness(index int, stack wire.TxWitness) error {
	if index < 0 || index >= len(t.msg.TxIn) {
		return errors.Errorf("input index %d out of range", index)
	}
	t.msg.TxIn[index].Witness = stack
	return nil
}

// SetInputScript sets the scriptSig for input index.
func (t *Tx) SetInputScript(index int, script []byte) error {
	if index < 0 || index >= len(t.msg.TxIn) {
		return errors.Errorf("input index %d out of range", index)
	}
	t.msg.TxIn[index].SignatureScript = script
	return nil
}

// InputAmount returns the funding amount recorded for input index at
// AddInput time. It errors rather than silently returning zero, since
// a missing amount would otherwise produce a BIP143 digest for the
// wrong value.
func (t *Tx) InputAmount(index int) (btcutil.Amount, error) {
	if index < 0 || index >= len(t.inputAmounts) {
		return 0, errors.Errorf(
			"no funding amount recorded for input %d", index)
	}
	return t.inputAmounts[index], nil
}

// MsgTx exposes the underlying wire.MsgTx for use with txscript (e.g.
// to compute a BIP143 sighash via sig.TxSignatureDigest).
func (t *Tx) MsgTx() *wire.MsgTx {
	return t.msg
}

// hasWitness reports whether any input carries a non-empty witness
// stack, which determines whether the BIP141 marker+flag are present
// on the wire.
func (t *Tx) hasWitness() bool {
	for _, in := range t.msg.TxIn {
		if len(in.Witness) > 0 {
			return true
		}
	}
	return false
}

// Linearize returns the canonical serialization of the transaction:
// version, marker+flag (if withWitness and any witness is non-empty),
// inputs, outputs, witnesses, locktime. Passing withWitness=false
// strips all witness data, matching the legacy txid-computation
// serialization from BIP141.
func Linearize(tx *Tx, withWitness bool) ([]byte, error) {
	var buf bytes.Buffer

	if withWitness && tx.hasWitness() {
		if err := tx.msg.Serialize(&buf); err != nil {
			return nil, errors.WrapPrefix(err,
				"unable to serialize witness tx", 0)
		}
		return buf.Bytes(), nil
	}

	if err := tx.msg.SerializeNoWitness(&buf); err != nil {
		return nil, errors.WrapPrefix(err,
			"unable to serialize tx", 0)
	}
	return buf.Bytes(), nil
}

// TxID computes HASH256(linearize(tx, with_witness=false)), which by
// construction is independent of any witness stack content (property
// 4 in spec.md §8).
func TxID(tx *Tx) (chainhash.Hash, error) {
	raw, err := Linearize(tx, false)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.DoubleHashH(raw), nil
}

// Weight computes 4*non_witness_bytes + witness_bytes, where
// witness_bytes includes the 2-byte marker+flag only when at least
// one input carries a non-empty witness (BIP141 weight units).
func Weight(tx *Tx) (uint32, error) {
	noWitness, err := Linearize(tx, false)
	if err != nil {
		return 0, err
	}

	if !tx.hasWitness() {
		return uint32(len(noWitness)) * witnessScaleFactor, nil
	}

	withWitness, err := Linearize(tx, true)
	if err != nil {
		return 0, err
	}

	witnessBytes := len(withWitness) - len(noWitness)
	return uint32(len(noWitness))*witnessScaleFactor + uint32(witnessBytes), nil
}

// Parse decodes a serialized transaction back into a Tx. Per-input
// funding amounts are not recoverable from the wire format (they
// never were part of consensus serialization), so a freshly Parsed Tx
// has none recorded; callers that need to re-sign a parsed
// transaction must re-supply amounts via AddInput-time bookkeeping or
// a sibling data source before calling TxSignatureDigest.
func Parse(data []byte) (*Tx, error) {
	msg := &wire.MsgTx{}
	if err := msg.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, errors.WrapPrefix(err, "unable to parse tx", 0)
	}
	return &Tx{msg: msg}, nil
}

// Check verifies the round-trip invariant from spec.md §8 property 1:
// linearize(parse(linearize(tx))) == linearize(tx).
func Check(tx *Tx) error {
	want, err := Linearize(tx, true)
	if err != nil {
		return err
	}

	parsed, err := Parse(want)
	if err != nil {
		return err
	}

	got, err := Linearize(parsed, true)
	if err != nil {
		return err
	}

	if !bytes.Equal(want, got) {
		return errors.Errorf(
			"round trip mismatch: linearize(parse(linearize(tx))) " +
				"!= linearize(tx)")
	}
	return nil
}
