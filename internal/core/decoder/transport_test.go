package decoder

import (
	"errors"
	"testing"

	"firestige.xyz/scanguard/internal/core"
)

func TestDecodeUDP(t *testing.T) {
	data := []byte{
		0x13, 0x88, // Src Port: 5000
		0x13, 0x89, // Dst Port: 5001
		0x00, 0x0C, // Length: 12 bytes
		0x00, 0x00, // Checksum
		0x01, 0x02, 0x03, 0x04, // Payload
	}

	var view core.HeaderView
	if err := decodeUDP(data, &view); err != nil {
		t.Fatalf("decodeUDP failed: %v", err)
	}
	if view.Protocol != core.ProtocolUDP {
		t.Errorf("Expected protocol udp, got %s", view.Protocol)
	}
	if view.SrcPort != 5000 || view.DstPort != 5001 {
		t.Errorf("Expected ports 5000->5001, got %d->%d", view.SrcPort, view.DstPort)
	}
	if view.Flags != 0 || view.Window != 0 {
		t.Errorf("Expected no TCP fields on UDP view, got flags=%s window=%d", view.Flags, view.Window)
	}
}

func TestDecodeTCP(t *testing.T) {
	data := []byte{
		0x13, 0x88, // Src Port: 5000
		0x00, 0x50, // Dst Port: 80
		0x00, 0x00, 0x00, 0x01, // Seq Num
		0x00, 0x00, 0x00, 0x00, // Ack Num
		0x50,       // Data Offset: 5 (20 bytes)
		0x29,       // Flags: URG + PSH + FIN
		0x08, 0x00, // Window: 2048
		0x00, 0x00, // Checksum
		0x00, 0x00, // Urgent Pointer
	}

	var view core.HeaderView
	if err := decodeTCP(data, &view); err != nil {
		t.Fatalf("decodeTCP failed: %v", err)
	}
	if view.Protocol != core.ProtocolTCP {
		t.Errorf("Expected protocol tcp, got %s", view.Protocol)
	}
	if view.SrcPort != 5000 || view.DstPort != 80 {
		t.Errorf("Expected ports 5000->80, got %d->%d", view.SrcPort, view.DstPort)
	}
	if view.Flags != core.FlagFIN|core.FlagPSH|core.FlagURG {
		t.Errorf("Expected FIN|PSH|URG, got %s", view.Flags)
	}
	if view.Window != 2048 {
		t.Errorf("Expected window 2048, got %d", view.Window)
	}
}

func TestDecodeTCPAllFlags(t *testing.T) {
	data := make([]byte, 20)
	data[12] = 0x50
	data[13] = 0xFF // CWR ECE URG ACK PSH RST SYN FIN

	var view core.HeaderView
	if err := decodeTCP(data, &view); err != nil {
		t.Fatalf("decodeTCP failed: %v", err)
	}
	if view.Flags != core.AllFlags {
		t.Errorf("Expected all flags, got %s", view.Flags)
	}
}

func TestDecodeUDPTooShort(t *testing.T) {
	var view core.HeaderView
	err := decodeUDP([]byte{0x13, 0x88, 0x13}, &view)
	if !errors.Is(err, core.ErrTruncated) {
		t.Errorf("Expected ErrTruncated, got %v", err)
	}
}

func TestDecodeTCPTooShort(t *testing.T) {
	var view core.HeaderView
	err := decodeTCP([]byte{0x13, 0x88, 0x13, 0x89, 0x00}, &view)
	if !errors.Is(err, core.ErrTruncated) {
		t.Errorf("Expected ErrTruncated, got %v", err)
	}
}

func TestDecodeTCPDataOffsetBeyondSegment(t *testing.T) {
	data := make([]byte, 20)
	data[12] = 0x80 // 32 byte header, only 20 present

	var view core.HeaderView
	err := decodeTCP(data, &view)
	if !errors.Is(err, core.ErrTruncated) {
		t.Errorf("Expected ErrTruncated, got %v", err)
	}
}

func TestDecodeTransportOther(t *testing.T) {
	view := core.HeaderView{Protocol: core.ProtocolTCP}
	if err := decodeTransport([]byte{0x08, 0x00}, 1, &view); err != nil {
		t.Fatalf("decodeTransport failed: %v", err)
	}
	if view.Protocol != core.ProtocolOther {
		t.Errorf("Expected protocol other, got %s", view.Protocol)
	}
}
