package lnwire

import "fmt"

// ShortChannelID represents the compact, 8-byte identifier of a
// channel, derived from the block height, transaction index, and
// output index of its funding transaction.
type ShortChannelID struct {
	BlockHeight uint32
	TxIndex     uint32
	TxPosition  uint16
}

// ToUint64 packs the three fields into the 64-bit wire
// representation: 3 bytes block height, 3 bytes tx index, 2 bytes
// output index.
func (scid ShortChannelID) ToUint64() uint64 {
	return ((uint64(scid.BlockHeight) << 40) & 0xffffff0000000000) |
		((uint64(scid.TxIndex) << 16) & 0x000000ffffff0000) |
		(uint64(scid.TxPosition) & 0x000000000000ffff)
}

// NewShortChanIDFromInt unpacks a 64-bit scid into its components.
func NewShortChanIDFromInt(chanID uint64) ShortChannelID {
	return ShortChannelID{
		BlockHeight: uint32(chanID >> 40),
		TxIndex:     uint32(chanID>>16) & 0xffffff,
		TxPosition:  uint16(chanID),
	}
}

// String returns the conventional "<block>x<index>x<position>"
// representation used in logs and RPC replies.
func (scid ShortChannelID) String() string {
	return fmt.Sprintf("%dx%dx%d", scid.BlockHeight, scid.TxIndex,
		scid.TxPosition)
}
