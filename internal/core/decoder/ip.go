package decoder

import (
	"encoding/binary"
	"net/netip"

	"firestige.xyz/scanguard/internal/core"
)

const ipv4HeaderMinLen = 20

// ipv4Header holds the IPv4 fields extraction needs.
type ipv4Header struct {
	protocol       uint8
	fragmentOffset uint16
	src            netip.Addr
	dst            netip.Addr
}

// decodeIPv4 validates the IPv4 header and returns it together with the
// transport segment, trimmed to the declared total length.
func decodeIPv4(data []byte) (ipv4Header, []byte, error) {
	if len(data) < 1 {
		return ipv4Header{}, nil, core.ErrTruncated
	}
	if data[0]>>4 != 4 {
		return ipv4Header{}, nil, core.ErrNotIPv4
	}
	if len(data) < ipv4HeaderMinLen {
		return ipv4Header{}, nil, core.ErrTruncated
	}

	// IHL is in 32-bit words
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || len(data) < headerLen {
		return ipv4Header{}, nil, core.ErrTruncated
	}

	totalLen := int(binary.BigEndian.Uint16(data[2:4]))
	if totalLen < headerLen || totalLen > len(data) {
		return ipv4Header{}, nil, core.ErrTruncated
	}

	ip := ipv4Header{
		protocol:       data[9],
		fragmentOffset: binary.BigEndian.Uint16(data[6:8]) & 0x1FFF,
		src:            netip.AddrFrom4([4]byte(data[12:16])),
		dst:            netip.AddrFrom4([4]byte(data[16:20])),
	}

	// Anything past total length is link-layer padding.
	return ip, data[headerLen:totalLen], nil
}
