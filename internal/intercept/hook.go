// Package intercept connects the classifier to the packets leaving the host.
//
// A Hook delivers every outgoing IPv4 packet to a PacketFunc and applies the
// verdict it returns where the mechanism allows it. Which hook runs, and with
// which parameters, is decided by the caller through HookOps; the package keeps
// no global state.
package intercept

import (
	"context"
	"fmt"
	"strconv"

	"firestige.xyz/scanguard/internal/config"
	"firestige.xyz/scanguard/internal/core"
	"firestige.xyz/scanguard/internal/log"
)

// PacketFunc classifies one packet. It must be safe for concurrent use and
// must not retain raw.Data after returning.
type PacketFunc func(raw core.RawPacket) core.Verdict

// Hook is a packet interception point.
type Hook interface {
	// Register starts delivering packets to fn. It returns
	// core.ErrHookRegistered if the hook is already registered.
	Register(ctx context.Context, fn PacketFunc) error
	// Unregister stops delivery and releases kernel resources. It returns
	// core.ErrHookNotRegistered if the hook is not registered.
	Unregister() error
	// Registered reports whether packets are currently being delivered.
	Registered() bool
	// Mode names the hook: config.ModeEnforce or config.ModeMonitor.
	Mode() string
}

// HookOps describes how a hook is attached.
type HookOps struct {
	// netfilter queue
	QueueNum    uint16
	MaxQueueLen uint32
	Table       string
	Chain       string
	Bypass      bool

	// passive capture
	Interface     string
	SnapLen       int
	BufferSizeMB  int
	PollTimeoutMs int

	// worker pool for passive capture
	Workers         int
	ChannelCapacity int
}

// OpsFromConfig builds HookOps from configuration.
func OpsFromConfig(cfg *config.GlobalConfig) HookOps {
	ic := cfg.Intercept
	return HookOps{
		QueueNum:        ic.QueueNum,
		MaxQueueLen:     ic.MaxQueueLen,
		Table:           ic.Table,
		Chain:           ic.Chain,
		Bypass:          ic.Bypass,
		Interface:       ic.Interface,
		SnapLen:         ic.SnapLen,
		BufferSizeMB:    ic.BufferSizeMB,
		PollTimeoutMs:   ic.PollTimeoutMs,
		Workers:         cfg.Resources.Workers,
		ChannelCapacity: cfg.Resources.ChannelCapacity,
	}
}

// RuleSpec returns the iptables rule sending packets to the queue.
// With Bypass the kernel accepts packets while no process is bound to the
// queue, so a stopped daemon never blocks traffic.
func (o HookOps) RuleSpec() []string {
	spec := []string{"-j", "NFQUEUE", "--queue-num", strconv.Itoa(int(o.QueueNum))}
	if o.Bypass {
		spec = append(spec, "--queue-bypass")
	}
	return spec
}

// New creates the hook for mode.
func New(mode string, ops HookOps, logger log.Logger) (Hook, error) {
	switch mode {
	case config.ModeEnforce:
		h, err := NewNFQueueHook(ops, logger)
		if err != nil {
			return nil, err
		}
		return h, nil
	case config.ModeMonitor:
		h, err := NewAFPacketHook(ops, logger)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("%w: unknown intercept mode %q", core.ErrConfigInvalid, mode)
	}
}
