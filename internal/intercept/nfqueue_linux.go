//go:build linux

package intercept

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/florianl/go-nfqueue"
	"github.com/hashicorp/go-multierror"
	"github.com/mdlayher/netlink"
	"github.com/tevino/abool"
	"golang.org/x/sys/unix"

	"firestige.xyz/scanguard/internal/config"
	"firestige.xyz/scanguard/internal/core"
	"firestige.xyz/scanguard/internal/log"
	"firestige.xyz/scanguard/internal/metrics"
)

// nfqueue packet buffer, large enough for a full MTU frame.
const maxPacketLen = 0xFFFF

// NFQueueHook diverts outgoing packets through a netfilter queue and applies
// the returned verdict in the kernel.
type NFQueueHook struct {
	ops    HookOps
	logger log.Logger
	table  ruleTable

	registered *abool.AtomicBool
	nf         *nfqueue.Nfqueue
	cancel     context.CancelFunc
}

// NewNFQueueHook creates an enforcing hook. Nothing is installed until Register.
func NewNFQueueHook(ops HookOps, logger log.Logger) (*NFQueueHook, error) {
	t, err := newRuleTable()
	if err != nil {
		return nil, err
	}
	return newNFQueueHook(ops, logger, t), nil
}

func newNFQueueHook(ops HookOps, logger log.Logger, t ruleTable) *NFQueueHook {
	return &NFQueueHook{
		ops:        ops,
		logger:     logger.WithField("queue", ops.QueueNum),
		table:      t,
		registered: abool.New(),
	}
}

func (h *NFQueueHook) Mode() string { return config.ModeEnforce }

func (h *NFQueueHook) Registered() bool { return h.registered.IsSet() }

// Register opens the queue and then installs the rule feeding it, so no
// packet is queued before a reader is bound.
func (h *NFQueueHook) Register(ctx context.Context, fn PacketFunc) error {
	if !h.registered.SetToIf(false, true) {
		return core.ErrHookRegistered
	}

	nf, err := nfqueue.Open(&nfqueue.Config{
		NfQueue:      h.ops.QueueNum,
		MaxPacketLen: maxPacketLen,
		MaxQueueLen:  h.ops.MaxQueueLen,
		AfFamily:     unix.AF_INET,
		Copymode:     nfqueue.NfQnlCopyPacket,
		ReadTimeout:  time.Second,
		WriteTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		h.registered.UnSet()
		return fmt.Errorf("open nfqueue %d: %w", h.ops.QueueNum, err)
	}

	if err := nf.SetOption(netlink.NoENOBUFS, true); err != nil {
		nf.Close()
		h.registered.UnSet()
		return fmt.Errorf("set netlink option %v: %w", netlink.NoENOBUFS, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := nf.RegisterWithErrorFunc(ctx, h.handler(nf, fn), h.handleError); err != nil {
		cancel()
		nf.Close()
		h.registered.UnSet()
		return fmt.Errorf("register nfqueue callback: %w", err)
	}

	if err := installRule(h.table, h.ops); err != nil {
		cancel()
		nf.Close()
		h.registered.UnSet()
		return err
	}

	h.nf = nf
	h.cancel = cancel
	metrics.HookRegistered.WithLabelValues(h.Mode()).Set(1)
	h.logger.WithField("table", h.ops.Table).WithField("chain", h.ops.Chain).Info("nfqueue hook registered")
	return nil
}

// Unregister removes the rule first so traffic stops entering the queue, then
// closes the socket. Errors of both steps are returned together.
func (h *NFQueueHook) Unregister() error {
	if !h.registered.SetToIf(true, false) {
		return core.ErrHookNotRegistered
	}

	var result *multierror.Error
	if err := removeRule(h.table, h.ops); err != nil {
		result = multierror.Append(result, err)
	}
	h.cancel()
	if err := h.nf.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close nfqueue: %w", err))
	}
	h.nf = nil

	metrics.HookRegistered.WithLabelValues(h.Mode()).Set(0)
	h.logger.Info("nfqueue hook unregistered")
	return result.ErrorOrNil()
}

func (h *NFQueueHook) handler(nf *nfqueue.Nfqueue, fn PacketFunc) nfqueue.HookFunc {
	return func(a nfqueue.Attribute) int {
		id, verdict, ok := decide(a, fn)
		if !ok {
			return 0
		}
		if err := nf.SetVerdict(id, verdict); err != nil {
			metrics.HookErrorsTotal.WithLabelValues(h.Mode()).Inc()
			h.logger.WithError(err).WithField("packet_id", id).Warn("failed to set verdict")
		}
		return 0
	}
}

// decide returns the packet id and netfilter verdict for a queued packet.
// ok is false when the attribute carries no packet id, since no verdict can
// be issued then. Packets without payload are accepted unclassified.
func decide(a nfqueue.Attribute, fn PacketFunc) (id uint32, verdict int, ok bool) {
	if a.PacketID == nil {
		return 0, 0, false
	}
	raw, ok := packetFromAttribute(a)
	if !ok {
		return *a.PacketID, nfqueue.NfAccept, true
	}
	return *a.PacketID, nfVerdict(fn(raw)), true
}

func packetFromAttribute(a nfqueue.Attribute) (core.RawPacket, bool) {
	if a.Payload == nil {
		return core.RawPacket{}, false
	}
	n := uint32(len(*a.Payload))
	raw := core.RawPacket{
		Data:       *a.Payload,
		Timestamp:  time.Now(),
		LinkType:   core.LinkTypeRaw,
		CaptureLen: n,
		OrigLen:    n,
	}
	if a.Timestamp != nil {
		raw.Timestamp = *a.Timestamp
	}
	return raw, true
}

func nfVerdict(v core.Verdict) int {
	if v == core.VerdictDrop {
		return nfqueue.NfDrop
	}
	return nfqueue.NfAccept
}

// handleError keeps the receive loop running on transient errors and stops
// it once the socket is closed.
func (h *NFQueueHook) handleError(err error) int {
	if errors.Is(err, context.Canceled) || strings.HasSuffix(err.Error(), "use of closed file") {
		return 1
	}
	var opErr interface{ Timeout() bool }
	if errors.As(err, &opErr) && opErr.Timeout() {
		return 0
	}
	metrics.HookErrorsTotal.WithLabelValues(h.Mode()).Inc()
	h.logger.WithError(err).Error("nfqueue receive error")
	return 0
}
