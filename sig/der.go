package sig

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"
)

// halfOrder is curve order / 2, used to enforce the low-S rule: DER
// signatures we emit always carry the S value in the lower half of
// the group order, as the rest of the ecosystem (and BIP62) requires.
var halfOrder = new(big.Int).Rsh(btcec.S256().N, 1)

// maxDERLen is the largest a (sig || sighash byte) can legally be:
// 9 (minimum) to 73 bytes inclusive, per spec.md §4.A.
const maxDERLen = 73

// SignatureToDER serializes sig into the strict, minimal DER encoding
// used on the wire, with the sighash-type byte appended as the final
// byte. This is the Go equivalent of signature_to_der(): it normalizes
// S into the low half of the curve order, builds
//
//	0x30 <total-len> 0x02 <r-len> r 0x02 <s-len> s <sighash>
//
// and re-validates its own output before returning, matching the
// original's "fail fast on encoder bugs" contract.
func SignatureToDER(sig *Signature) ([]byte, error) {
	if !sighashTypeValid(sig.SigHash) {
		return nil, errors.Errorf("unsupported sighash type %v",
			sig.SigHash)
	}

	s := sig.S
	if s.Cmp(halfOrder) == 1 {
		s = new(big.Int).Sub(btcec.S256().N, s)
	}

	rBytes := minimalInt(sig.R)
	sBytes := minimalInt(s)

	totalLen := 4 + len(rBytes) + len(sBytes)
	der := make([]byte, 0, totalLen+3)
	der = append(der, 0x30, byte(totalLen))
	der = append(der, 0x02, byte(len(rBytes)))
	der = append(der, rBytes...)
	der = append(der, 0x02, byte(len(sBytes)))
	der = append(der, sBytes...)
	der = append(der, byte(sig.SigHash))

	if !isValidSignatureEncoding(der) {
		return nil, errors.Errorf(
			"internal error: encoder produced invalid DER: %x",
			der)
	}

	return der, nil
}

// SignatureFromDER parses a strict-DER-encoded signature with a
// trailing sighash byte, the Go equivalent of signature_from_der().
// It rejects anything that does not satisfy IsValidSignatureEncoding,
// and rejects any sighash type other than ALL or SINGLE|ANYONECANPAY.
func SignatureFromDER(der []byte) (*Signature, error) {
	if len(der) < 1 {
		return nil, errors.New("empty signature")
	}
	if !isValidSignatureEncoding(der) {
		return nil, errors.Errorf("invalid DER signature encoding: %x",
			der)
	}

	sigHash := SigHashType(der[len(der)-1])
	if !sighashTypeValid(sigHash) {
		return nil, errors.Errorf("unsupported sighash type %v", sigHash)
	}

	lenR := int(der[3])
	r := new(big.Int).SetBytes(der[4 : 4+lenR])
	sOff := 4 + lenR
	lenS := int(der[sOff+1])
	s := new(big.Int).SetBytes(der[sOff+2 : sOff+2+lenS])

	return &Signature{R: r, S: s, SigHash: sigHash}, nil
}

// minimalInt returns the minimal big-endian encoding of a positive
// integer for DER purposes: no leading zero byte, except a single one
// prepended when the high bit of the first byte would otherwise be
// set (which DER would read as a negative number).
func minimalInt(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) == 0 {
		return []byte{0x00}
	}
	if b[0]&0x80 != 0 {
		return append([]byte{0x00}, b...)
	}
	return b
}

// isValidSignatureEncoding is a direct port of
// IsValidSignatureEncoding() from bitcoin/src/script/sign.cpp as
// embedded in bitcoin/signature.c, byte for byte, so that our own
// strictness matches the reference peers already enforce on the wire.
func isValidSignatureEncoding(sigv []byte) bool {
	length := len(sigv)

	// Format: 0x30 [total-length] 0x02 [R-length] [R] 0x02 [S-length]
	// [S] [sighash].
	if length < 9 || length > maxDERLen {
		return false
	}
	if sigv[0] != 0x30 {
		return false
	}
	if int(sigv[1]) != length-3 {
		return false
	}

	lenR := int(sigv[3])
	if 5+lenR >= length {
		return false
	}
	lenS := int(sigv[5+lenR])

	if lenR+lenS+7 != length {
		return false
	}
	if sigv[2] != 0x02 {
		return false
	}
	if lenR == 0 {
		return false
	}
	if sigv[4]&0x80 != 0 {
		return false
	}
	if lenR > 1 && sigv[4] == 0x00 && sigv[5]&0x80 == 0 {
		return false
	}
	if sigv[lenR+4] != 0x02 {
		return false
	}
	if lenS == 0 {
		return false
	}
	if sigv[lenR+6]&0x80 != 0 {
		return false
	}
	if lenS > 1 && sigv[lenR+6] == 0x00 && sigv[lenR+7]&0x80 == 0 {
		return false
	}

	return true
}
