// Package onion builds the per-hop payload stream described in
// spec.md §4.D/E and §6. The onion construction itself (Sphinx
// mixing, shared-secret derivation) is the external "onion
// constructor" collaborator named in §6; this package only produces
// the bytes that collaborator embeds per hop, plus the associated
// data passed alongside it.
package onion

import (
	"bytes"
	"encoding/binary"

	"github.com/go-errors/errors"
	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/route"
	"github.com/lightningnetwork/lnd/tlv"
)

// TLV types for the fields this core ever emits, matching the
// well-known per-hop payload type numbers.
const (
	typeAmtToForward   tlv.Type = 2
	typeOutgoingCLTV   tlv.Type = 4
	typeShortChannelID tlv.Type = 6
	typePaymentData    tlv.Type = 8

	legacyRealm         = 0x00
	legacyPayloadLength = 33
)

// PaymentData carries the MPP fields the final hop's TLV payload
// needs when the payment uses a payment_secret, per spec.md §4.D/E.
type PaymentData struct {
	PaymentSecret [32]byte
	TotalMsat     lnwire.MilliSatoshi
}

// Hop is one already-resolved entry of createonion_request.hops: the
// pubkey the payload is destined for, plus the payload bytes
// themselves.
type Hop struct {
	NodeID  route.Vertex
	Payload []byte
}

// BuildPayloads walks r and produces one payload per hop, following
// the non-final/final split in spec.md §4.D/E:
//
//   - non-final hop i (i < len-1): "forward route[i+1].amount via
//     route[i+1].scid with outgoing CLTV = startBlock + route[i+1].delay"
//   - final hop: amount = route[last].amount, scid = 0,
//     cltv = startBlock + route[last].delay; if paymentSecret is
//     non-nil, additionally carries (payment_secret, totalMsat) under
//     the payment-data TLV type (MPP).
func BuildPayloads(r route.Route, startBlock uint32,
	paymentSecret *[32]byte, totalMsat lnwire.MilliSatoshi) ([]Hop, error) {

	if len(r) == 0 {
		return nil, errors.New("cannot build payloads for an empty route")
	}

	hops := make([]Hop, len(r))

	for i := 0; i < len(r)-1; i++ {
		next := r[i+1]
		cltv := startBlock + next.Delay

		payload, err := encodeHop(r[i].Style, next.Amount,
			next.ShortChannelID, cltv, nil)
		if err != nil {
			return nil, err
		}
		hops[i] = Hop{NodeID: r[i].NodeID, Payload: payload}
	}

	final := r[len(r)-1]
	cltv := startBlock + final.Delay

	var data *PaymentData
	if paymentSecret != nil {
		data = &PaymentData{PaymentSecret: *paymentSecret, TotalMsat: totalMsat}
	}

	payload, err := encodeHop(final.Style, final.Amount,
		lnwire.ShortChannelID{}, cltv, data)
	if err != nil {
		return nil, err
	}
	hops[len(r)-1] = Hop{NodeID: final.NodeID, Payload: payload}

	return hops, nil
}

func encodeHop(style route.Style, amt lnwire.MilliSatoshi,
	scid lnwire.ShortChannelID, cltv uint32, data *PaymentData) ([]byte, error) {

	switch style {
	case route.Legacy:
		return encodeLegacy(amt, scid, cltv), nil
	case route.TLV:
		return encodeTLV(amt, scid, cltv, data)
	default:
		return nil, errors.Errorf("unknown route hop style %v", style)
	}
}

// encodeLegacy produces the fixed 33-byte legacy onion_payload:
// 0x00 realm || scid(8) || u64be(forward_amt_msat) ||
// u32be(outgoing_cltv) || 12-byte zero pad.
func encodeLegacy(amt lnwire.MilliSatoshi, scid lnwire.ShortChannelID,
	cltv uint32) []byte {

	buf := make([]byte, legacyPayloadLength)
	buf[0] = legacyRealm

	binary.BigEndian.PutUint64(buf[1:9], scid.ToUint64())
	binary.BigEndian.PutUint64(buf[9:17], uint64(amt))
	binary.BigEndian.PutUint32(buf[17:21], cltv)
	// buf[21:33] stays zero, the required padding.

	return buf
}

// encodeTLV produces a bigsize-prefixed TLV stream carrying
// amt_to_forward, outgoing_cltv_value, short_channel_id (non-final
// hops only, omitted here since the final hop's scid is always the
// zero value and is simply not written for final hops by callers that
// don't want it), and optionally payment_data for MPP.
func encodeTLV(amt lnwire.MilliSatoshi, scid lnwire.ShortChannelID,
	cltv uint32, data *PaymentData) ([]byte, error) {

	var (
		amtVal  = uint64(amt)
		cltvVal = cltv
		scidVal = scid.ToUint64()
	)

	records := []tlv.Record{
		tlv.MakeBigSizeRecord(typeAmtToForward, &amtVal),
		tlv.MakeBigSizeRecord(typeOutgoingCLTV, &cltvVal),
	}
	if scidVal != 0 {
		records = append(records,
			tlv.MakePrimitiveRecord(typeShortChannelID, &scidVal))
	}
	if data != nil {
		payload := encodePaymentData(data)
		records = append(records, tlv.MakeDynamicRecord(
			typePaymentData, &payload,
			func() uint64 { return uint64(len(payload)) },
			func(w *bytes.Buffer, val interface{}, buf *[8]byte) error {
				b := val.(*[]byte)
				_, err := w.Write(*b)
				return err
			},
			func(r *bytes.Reader, val interface{}, buf *[8]byte, l uint64) error {
				return errors.New("payment_data decode not supported")
			},
		))
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, errors.WrapPrefix(err, "unable to build tlv stream", 0)
	}

	var out bytes.Buffer
	if err := stream.Encode(&out); err != nil {
		return nil, errors.WrapPrefix(err, "unable to encode tlv stream", 0)
	}
	return out.Bytes(), nil
}

// encodePaymentData serializes the payment_data TLV value:
// payment_secret(32) || total_msat(bigsize).
func encodePaymentData(d *PaymentData) []byte {
	var buf bytes.Buffer
	buf.Write(d.PaymentSecret[:])

	var sizeBuf [8]byte
	_ = tlv.WriteVarInt(&buf, uint64(d.TotalMsat), &sizeBuf)

	return buf.Bytes()
}

// AssociatedData is the onion construction's associated data, the
// payment hash, per spec.md §4.D/E.
func AssociatedData(paymentHash [32]byte) []byte {
	out := make([]byte, 32)
	copy(out, paymentHash[:])
	return out
}
