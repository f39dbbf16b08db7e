// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/scanguard/internal/core"
)

const (
	// Ethernet constants
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4

	// EtherType values
	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8
)

// decodeEthernet skips the Ethernet frame header (including VLAN tags).
// Returns the innermost EtherType and the remaining payload.
func decodeEthernet(data []byte) (uint16, []byte, error) {
	if len(data) < ethernetHeaderLen {
		return 0, nil, core.ErrTruncated
	}

	etherType := binary.BigEndian.Uint16(data[12:14])
	offset := ethernetHeaderLen

	// VLAN tags can be nested (QinQ)
	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if len(data) < offset+vlanHeaderLen {
			return 0, nil, core.ErrTruncated
		}
		// 2 bytes TCI + 2 bytes EtherType
		etherType = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += vlanHeaderLen
	}

	return etherType, data[offset:], nil
}
