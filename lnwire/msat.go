package lnwire

import (
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
)

// MilliSatoshi represents a thousandth of a satoshi, the unit in
// which on-the-wire amounts (HTLC values, channel balances, fee
// budgets) are expressed throughout the protocol.
type MilliSatoshi uint64

// NewMSatFromSatoshis converts a satoshi amount into its millisatoshi
// equivalent.
func NewMSatFromSatoshis(sat btcutil.Amount) MilliSatoshi {
	return MilliSatoshi(sat * 1000)
}

// ToSatoshis rounds down to the nearest whole satoshi.
func (m MilliSatoshi) ToSatoshis() btcutil.Amount {
	return btcutil.Amount(m / 1000)
}

// String returns a "<amount> mSAT" representation of the amount,
// matching the teacher's other wire types' minimal Stringers.
func (m MilliSatoshi) String() string {
	return strconv.FormatUint(uint64(m), 10) + " mSAT"
}
