// Package testutil builds well-formed packets for tests using gopacket.
package testutil

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/scanguard/internal/core"
)

var (
	srcMAC = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	dstMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

	SrcIP = net.IPv4(192, 168, 1, 1).To4()
	DstIP = net.IPv4(192, 168, 1, 2).To4()
)

// TCPSpec describes a TCP test packet.
type TCPSpec struct {
	Flags   core.TCPFlags
	Window  uint16
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

// TCP serializes an IPv4/TCP packet, framed according to link.
func TCP(t testing.TB, link core.LinkType, spec TCPSpec) []byte {
	t.Helper()

	if spec.SrcPort == 0 {
		spec.SrcPort = 40000
	}
	if spec.DstPort == 0 {
		spec.DstPort = 80
	}

	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(spec.SrcPort),
		DstPort: layers.TCPPort(spec.DstPort),
		Seq:     1,
		Window:  spec.Window,
		FIN:     spec.Flags.Has(core.FlagFIN),
		SYN:     spec.Flags.Has(core.FlagSYN),
		RST:     spec.Flags.Has(core.FlagRST),
		PSH:     spec.Flags.Has(core.FlagPSH),
		ACK:     spec.Flags.Has(core.FlagACK),
		URG:     spec.Flags.Has(core.FlagURG),
		ECE:     spec.Flags.Has(core.FlagECE),
		CWR:     spec.Flags.Has(core.FlagCWR),
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("set network layer: %v", err)
	}

	return serialize(t, link, ip, tcp, gopacket.Payload(spec.Payload))
}

// UDP serializes an IPv4/UDP datagram carrying payload, framed according to link.
func UDP(t testing.TB, link core.LinkType, payload []byte) []byte {
	t.Helper()

	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 5000, DstPort: 5001}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("set network layer: %v", err)
	}

	return serialize(t, link, ip, udp, gopacket.Payload(payload))
}

// ICMP serializes an IPv4 echo request, framed according to link.
func ICMP(t testing.TB, link core.LinkType) []byte {
	t.Helper()

	ip := ipv4(layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	return serialize(t, link, ip, icmp)
}

// CaptureLinkType maps a core link type to the gopacket one used in pcap headers.
func CaptureLinkType(link core.LinkType) layers.LinkType {
	if link == core.LinkTypeEthernet {
		return layers.LinkTypeEthernet
	}
	return layers.LinkTypeRaw
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       0x1234,
		Protocol: proto,
		SrcIP:    SrcIP,
		DstIP:    DstIP,
	}
}

func serialize(t testing.TB, link core.LinkType, l ...gopacket.SerializableLayer) []byte {
	t.Helper()

	if link == core.LinkTypeEthernet {
		eth := &layers.Ethernet{
			SrcMAC:       srcMAC,
			DstMAC:       dstMAC,
			EthernetType: layers.EthernetTypeIPv4,
		}
		l = append([]gopacket.SerializableLayer{eth}, l...)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		t.Fatalf("serialize layers: %v", err)
	}
	return buf.Bytes()
}
