package intercept

import (
	"golang.org/x/net/bpf"
)

// PACKET_OUTGOING, the skb packet type of frames leaving the host
const packetOutgoing = 4

// tcpFilter accepts Ethernet-framed IPv4/TCP frames, truncated to snapLen
// bytes. The last instruction rejects.
func tcpFilter(snapLen uint32) []bpf.Instruction {
	return []bpf.Instruction{
		// ether type must be IPv4
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 0x0800, SkipTrue: 3},
		// IP protocol must be TCP
		bpf.LoadAbsolute{Off: 23, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 6, SkipTrue: 1},
		bpf.RetConstant{Val: snapLen},
		bpf.RetConstant{Val: 0},
	}
}

// outgoingTCPFilter is tcpFilter restricted to frames the host sends.
// Everything else is dropped in the kernel, since the classifier would
// accept it anyway.
func outgoingTCPFilter(snapLen uint32) []bpf.Instruction {
	tcp := tcpFilter(snapLen)
	prog := []bpf.Instruction{
		bpf.LoadExtension{Num: bpf.ExtType},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: packetOutgoing, SkipTrue: uint8(len(tcp) - 1)},
	}
	return append(prog, tcp...)
}

func assembleOutgoingTCPFilter(snapLen uint32) ([]bpf.RawInstruction, error) {
	return bpf.Assemble(outgoingTCPFilter(snapLen))
}
