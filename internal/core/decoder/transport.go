// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/scanguard/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20

	// Protocol numbers
	protocolTCP = 6
	protocolUDP = 17
)

// decodeTransport fills the transport part of view from the IPv4 payload.
func decodeTransport(data []byte, protocol uint8, view *core.HeaderView) error {
	switch protocol {
	case protocolTCP:
		return decodeTCP(data, view)
	case protocolUDP:
		return decodeUDP(data, view)
	default:
		// ICMP, SCTP, ... are never classified
		view.Protocol = core.ProtocolOther
		return nil
	}
}

// decodeUDP checks that a complete UDP header is present.
func decodeUDP(data []byte, view *core.HeaderView) error {
	if len(data) < udpHeaderLen {
		return core.ErrTruncated
	}

	view.Protocol = core.ProtocolUDP
	view.SrcPort = binary.BigEndian.Uint16(data[0:2])
	view.DstPort = binary.BigEndian.Uint16(data[2:4])
	return nil
}

// decodeTCP decodes ports, control flags and window of a TCP header.
func decodeTCP(data []byte, view *core.HeaderView) error {
	if len(data) < tcpHeaderMinLen {
		return core.ErrTruncated
	}

	// Data offset is the upper nibble of byte 12, in 32-bit words
	headerLen := int(data[12]>>4) * 4
	if headerLen < tcpHeaderMinLen || len(data) < headerLen {
		return core.ErrTruncated
	}

	view.Protocol = core.ProtocolTCP
	view.SrcPort = binary.BigEndian.Uint16(data[0:2])
	view.DstPort = binary.BigEndian.Uint16(data[2:4])

	// Byte 13: | CWR | ECE | URG | ACK | PSH | RST | SYN | FIN |
	view.Flags = core.TCPFlags(data[13])

	// Window is sent in network byte order
	view.Window = binary.BigEndian.Uint16(data[14:16])
	return nil
}
