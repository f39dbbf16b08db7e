package intercept

import (
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/scanguard/internal/core"
)

// linkTypeIPv4 is LINKTYPE_IPV4.
const linkTypeIPv4 layers.LinkType = 228

// LinkTypeOf maps a capture link type to the framing the decoder understands.
func LinkTypeOf(lt layers.LinkType) (core.LinkType, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		return core.LinkTypeEthernet, nil
	case layers.LinkTypeRaw, linkTypeIPv4:
		return core.LinkTypeRaw, nil
	default:
		return 0, fmt.Errorf("unsupported link type %s", lt)
	}
}
