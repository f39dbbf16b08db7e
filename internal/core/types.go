// Package core defines core types with zero external dependencies.
package core

import "net/netip"

// Protocol is the transport protocol carried by an IPv4 packet, as far as
// classification is concerned.
type Protocol uint8

const (
	ProtocolOther Protocol = iota
	ProtocolTCP
	ProtocolUDP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	default:
		return "other"
	}
}

// TCPFlags is the set of TCP control flags, laid out as byte 13 of the TCP header.
// Flags are independent; any combination is a valid value.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
)

// AllFlags has every control flag set.
const AllFlags = FlagFIN | FlagSYN | FlagRST | FlagPSH | FlagACK | FlagURG | FlagECE | FlagCWR

var flagNames = [8]string{"FIN", "SYN", "RST", "PSH", "ACK", "URG", "ECE", "CWR"}

// Has reports whether every flag in mask is set.
func (f TCPFlags) Has(mask TCPFlags) bool {
	return f&mask == mask
}

// Only reports whether the set flags are exactly mask.
func (f TCPFlags) Only(mask TCPFlags) bool {
	return f == mask
}

// String renders the set flags as "FIN|PSH|URG", or "none".
func (f TCPFlags) String() string {
	if f == 0 {
		return "none"
	}
	out := make([]byte, 0, 32)
	for i, name := range flagNames {
		if f&(1<<i) == 0 {
			continue
		}
		if len(out) > 0 {
			out = append(out, '|')
		}
		out = append(out, name...)
	}
	return string(out)
}

// HeaderView is the validated view of one packet's IPv4 and transport headers.
// Flags and Window are only meaningful when Protocol is ProtocolTCP.
// Addresses and ports are carried for telemetry; no signature reads them.
type HeaderView struct {
	Protocol Protocol
	Flags    TCPFlags
	Window   uint16 // host byte order

	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16 // zero unless TCP or UDP
	DstPort uint16
}

// Verdict is the decision handed back to the interception layer.
type Verdict uint8

const (
	VerdictAccept Verdict = iota
	VerdictDrop
)

func (v Verdict) String() string {
	if v == VerdictDrop {
		return "drop"
	}
	return "accept"
}
