//go:build !linux

package intercept

import (
	"context"

	"firestige.xyz/scanguard/internal/core"
	"firestige.xyz/scanguard/internal/log"
)

type unsupportedHook struct{}

func (unsupportedHook) Register(context.Context, PacketFunc) error { return core.ErrUnsupportedPlatform }
func (unsupportedHook) Unregister() error { return core.ErrHookNotRegistered }
func (unsupportedHook) Registered() bool { return false }
func (unsupportedHook) Mode() string { return "" }

// NFQueueHook needs netfilter and is only available on Linux.
type NFQueueHook struct{ unsupportedHook }

// AFPacketHook needs AF_PACKET and is only available on Linux.
type AFPacketHook struct{ unsupportedHook }

func NewNFQueueHook(HookOps, log.Logger) (*NFQueueHook, error) {
	return nil, core.ErrUnsupportedPlatform
}

func NewAFPacketHook(HookOps, log.Logger) (*AFPacketHook, error) {
	return nil, core.ErrUnsupportedPlatform
}
