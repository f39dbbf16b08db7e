// Package core defines core data structures with zero external dependencies.
package core

import "time"

// LinkType tells the extractor where the IP header starts in a raw buffer.
type LinkType uint8

const (
	// LinkTypeRaw buffers start with the IP header (nfqueue payloads).
	LinkTypeRaw LinkType = iota
	// LinkTypeEthernet buffers start with an Ethernet II frame header.
	LinkTypeEthernet
)

func (l LinkType) String() string {
	if l == LinkTypeEthernet {
		return "ethernet"
	}
	return "raw"
}

// RawPacket is delivered by an interception source, zero-copy reference to its buffer.
type RawPacket struct {
	Data       []byte    // Raw frame or datagram, zero-copy slice
	Timestamp  time.Time // Capture timestamp
	LinkType   LinkType
	CaptureLen uint32 // Actual captured length
	OrigLen    uint32 // Original frame length
}
