package decoder

import (
	"errors"
	"net/netip"
	"testing"

	"firestige.xyz/scanguard/internal/core"
)

// ipv4Bytes builds a 20-byte IPv4 header followed by payloadLen zero bytes.
func ipv4Bytes(protocol uint8, totalLen uint16, payloadLen int) []byte {
	data := make([]byte, 20+payloadLen)
	data[0] = 0x45 // Version 4, IHL 5
	data[2], data[3] = byte(totalLen>>8), byte(totalLen)
	data[8] = 64 // TTL
	data[9] = protocol
	copy(data[12:16], []byte{10, 0, 0, 1})
	copy(data[16:20], []byte{10, 0, 0, 2})
	return data
}

func TestDecodeIPv4(t *testing.T) {
	data := ipv4Bytes(protocolTCP, 24, 4)

	ip, segment, err := decodeIPv4(data)
	if err != nil {
		t.Fatalf("decodeIPv4 failed: %v", err)
	}
	if ip.protocol != protocolTCP {
		t.Errorf("Expected protocol 6, got %d", ip.protocol)
	}
	if ip.src != netip.MustParseAddr("10.0.0.1") {
		t.Errorf("Expected src 10.0.0.1, got %s", ip.src)
	}
	if ip.dst != netip.MustParseAddr("10.0.0.2") {
		t.Errorf("Expected dst 10.0.0.2, got %s", ip.dst)
	}
	if len(segment) != 4 {
		t.Errorf("Expected segment length 4, got %d", len(segment))
	}
}

func TestDecodeIPv4TrimsPadding(t *testing.T) {
	// 20 byte header + 8 bytes declared, 18 bytes actually present
	data := ipv4Bytes(protocolUDP, 28, 18)

	_, segment, err := decodeIPv4(data)
	if err != nil {
		t.Fatalf("decodeIPv4 failed: %v", err)
	}
	if len(segment) != 8 {
		t.Errorf("Expected segment trimmed to 8, got %d", len(segment))
	}
}

func TestDecodeIPv4WithOptions(t *testing.T) {
	data := make([]byte, 28)
	data[0] = 0x46 // IHL 6: 24 byte header
	data[3] = 28
	data[9] = protocolUDP

	_, segment, err := decodeIPv4(data)
	if err != nil {
		t.Fatalf("decodeIPv4 failed: %v", err)
	}
	if len(segment) != 4 {
		t.Errorf("Expected segment length 4, got %d", len(segment))
	}
}

func TestDecodeIPv4Fragment(t *testing.T) {
	data := ipv4Bytes(protocolTCP, 28, 8)
	data[6], data[7] = 0x00, 0x10 // Fragment offset 16 (x8 bytes)

	ip, _, err := decodeIPv4(data)
	if err != nil {
		t.Fatalf("decodeIPv4 failed: %v", err)
	}
	if ip.fragmentOffset != 16 {
		t.Errorf("Expected fragment offset 16, got %d", ip.fragmentOffset)
	}
}

func TestDecodeIPv4Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, core.ErrTruncated},
		{"ipv6 version", []byte{0x60, 0x00, 0x00, 0x00}, core.ErrNotIPv4},
		{"short header", []byte{0x45, 0x00, 0x00, 0x14, 0x00}, core.ErrTruncated},
		{"ihl below minimum", func() []byte {
			d := ipv4Bytes(protocolTCP, 20, 0)
			d[0] = 0x44
			return d
		}(), core.ErrTruncated},
		{"ihl beyond buffer", func() []byte {
			d := ipv4Bytes(protocolTCP, 20, 0)
			d[0] = 0x4F // 60 byte header
			return d
		}(), core.ErrTruncated},
		{"total length beyond buffer", ipv4Bytes(protocolTCP, 60, 20), core.ErrTruncated},
		{"total length below header", ipv4Bytes(protocolTCP, 10, 20), core.ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeIPv4(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}
