//go:build linux

package intercept

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/tevino/abool"

	"firestige.xyz/scanguard/internal/config"
	"firestige.xyz/scanguard/internal/core"
	"firestige.xyz/scanguard/internal/log"
	"firestige.xyz/scanguard/internal/metrics"
)

// AFPacketHook captures outgoing IPv4/TCP frames passively; the kernel filter
// discards everything else. Verdicts are
// recorded by the PacketFunc but cannot be applied.
type AFPacketHook struct {
	ops    HookOps
	logger log.Logger

	frameSize int
	blockSize int
	numBlocks int

	registered *abool.AtomicBool
	handle     *afpacket.TPacket
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewAFPacketHook creates a monitoring hook. The socket is opened by Register.
func NewAFPacketHook(ops HookOps, logger log.Logger) (*AFPacketHook, error) {
	frameSize, blockSize, numBlocks, err := ringSize(ops.BufferSizeMB, ops.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	if ops.Workers <= 0 || ops.ChannelCapacity <= 0 {
		return nil, fmt.Errorf("%w: workers and channel capacity must be positive", core.ErrConfigInvalid)
	}
	iface := ops.Interface
	if iface == "" {
		iface = "any"
	}
	return &AFPacketHook{
		ops:        ops,
		logger:     logger.WithField("interface", iface),
		frameSize:  frameSize,
		blockSize:  blockSize,
		numBlocks:  numBlocks,
		registered: abool.New(),
	}, nil
}

func (h *AFPacketHook) Mode() string { return config.ModeMonitor }

func (h *AFPacketHook) Registered() bool { return h.registered.IsSet() }

func (h *AFPacketHook) Register(ctx context.Context, fn PacketFunc) error {
	if !h.registered.SetToIf(false, true) {
		return core.ErrHookRegistered
	}

	handle, err := h.open()
	if err != nil {
		h.registered.UnSet()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	h.handle = handle
	h.cancel = cancel

	packets := make(chan core.RawPacket, h.ops.ChannelCapacity)
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		h.readLoop(ctx, packets)
	}()
	go func() {
		defer h.wg.Done()
		if err := serve(ctx, packets, fn, h.ops.Workers); err != nil {
			h.logger.WithError(err).Error("monitor workers stopped")
		}
	}()

	metrics.HookRegistered.WithLabelValues(h.Mode()).Set(1)
	h.logger.Info("afpacket hook registered")
	return nil
}

func (h *AFPacketHook) open() (*afpacket.TPacket, error) {
	opts := []interface{}{
		afpacket.OptFrameSize(h.frameSize),
		afpacket.OptBlockSize(h.blockSize),
		afpacket.OptNumBlocks(h.numBlocks),
		afpacket.OptPollTimeout(time.Duration(h.ops.PollTimeoutMs) * time.Millisecond),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	}
	if h.ops.Interface != "" {
		opts = append(opts, afpacket.OptInterface(h.ops.Interface))
	}

	tp, err := afpacket.NewTPacket(opts...)
	if err != nil {
		return nil, fmt.Errorf("open afpacket: %w", err)
	}

	prog, err := assembleOutgoingTCPFilter(uint32(h.ops.SnapLen))
	if err != nil {
		tp.Close()
		return nil, fmt.Errorf("assemble bpf: %w", err)
	}
	if err := tp.SetBPF(prog); err != nil {
		tp.Close()
		return nil, fmt.Errorf("attach bpf: %w", err)
	}
	return tp, nil
}

// readLoop copies every captured frame into packets until ctx is done.
// Frames are dropped when the workers fall behind.
func (h *AFPacketHook) readLoop(ctx context.Context, packets chan<- core.RawPacket) {
	defer close(packets)
	for {
		if ctx.Err() != nil {
			return
		}
		data, ci, err := h.handle.ReadPacketData()
		if err != nil {
			if errors.Is(err, afpacket.ErrTimeout) || errors.Is(err, afpacket.ErrPoll) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			metrics.HookErrorsTotal.WithLabelValues(h.Mode()).Inc()
			h.logger.WithError(err).Warn("afpacket read failed")
			continue
		}
		raw := core.RawPacket{
			Data:       data,
			Timestamp:  ci.Timestamp,
			LinkType:   core.LinkTypeEthernet,
			CaptureLen: uint32(ci.CaptureLength),
			OrigLen:    uint32(ci.Length),
		}
		select {
		case packets <- raw:
		default:
			metrics.HookErrorsTotal.WithLabelValues(h.Mode()).Inc()
		}
	}
}

func (h *AFPacketHook) Unregister() error {
	if !h.registered.SetToIf(true, false) {
		return core.ErrHookNotRegistered
	}
	h.cancel()
	h.wg.Wait()
	h.handle.Close()
	h.handle = nil

	metrics.HookRegistered.WithLabelValues(h.Mode()).Set(0)
	h.logger.Info("afpacket hook unregistered")
	return nil
}
