// Package decoder extracts the header view the classifier works on from a raw buffer.
package decoder

import "firestige.xyz/scanguard/internal/core"

// Extract validates the IPv4 header chain in data and returns its header view.
//
// For core.LinkTypeEthernet the Ethernet header (and any VLAN tags) is only
// used to locate the IP header. Incomplete headers yield core.ErrTruncated;
// anything that is not IPv4 yields core.ErrNotIPv4. Extract has no side
// effects and does not retain data.
func Extract(data []byte, link core.LinkType) (core.HeaderView, error) {
	if link == core.LinkTypeEthernet {
		etherType, payload, err := decodeEthernet(data)
		if err != nil {
			return core.HeaderView{}, err
		}
		if etherType != etherTypeIPv4 {
			return core.HeaderView{}, core.ErrNotIPv4
		}
		data = payload
	}

	ip, segment, err := decodeIPv4(data)
	if err != nil {
		return core.HeaderView{}, err
	}

	view := core.HeaderView{
		Protocol: core.ProtocolOther,
		SrcIP:    ip.src,
		DstIP:    ip.dst,
	}

	// Later fragments carry no transport header to look at.
	if ip.fragmentOffset != 0 {
		return view, nil
	}

	if err := decodeTransport(segment, ip.protocol, &view); err != nil {
		return core.HeaderView{}, err
	}
	return view, nil
}

// Decode is Extract on a captured packet.
func Decode(raw core.RawPacket) (core.HeaderView, error) {
	return Extract(raw.Data, raw.LinkType)
}
