// Package codec implements the mirroring host's codec identifier registry:
// stable numeric ids, capability bitmasks, canonical name mapping, and
// host/client negotiation.
package codec

import (
	"runtime"
	"strings"
)

// ID is a closed set of video codec identifiers with stable small integer
// values, matching the wire protocol's encoder/session configuration.
type ID int32

const (
	H264 ID = 1
	H265 ID = 2
	AV1  ID = 3
	VP9  ID = 4
	H266 ID = 5
)

// Mask bit positions, one per ID, forming a capability bitmask.
const (
	MaskH264 uint32 = 1 << 0
	MaskH265 uint32 = 1 << 1
	MaskAV1  uint32 = 1 << 2
	MaskVP9  uint32 = 1 << 3
	MaskH266 uint32 = 1 << 4
)

// Mask returns the bit position for id.
func (id ID) Mask() uint32 {
	switch id {
	case H264:
		return MaskH264
	case H265:
		return MaskH265
	case AV1:
		return MaskAV1
	case VP9:
		return MaskVP9
	case H266:
		return MaskH266
	default:
		return 0
	}
}

// String returns the canonical display name for id.
func (id ID) String() string {
	switch id {
	case H264:
		return "H.264"
	case H265:
		return "H.265 HEVC"
	case AV1:
		return "AV1"
	case VP9:
		return "VP9"
	case H266:
		return "H.266"
	default:
		return "unknown"
	}
}

// FromName resolves a case-insensitive, trimmed codec name to its ID. The
// second return value is false when name matches no known codec.
func FromName(name string) (ID, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "h.264", "h.264 high", "h264":
		return H264, true
	case "h.265", "h.265 hevc", "hevc", "h265":
		return H265, true
	case "av1":
		return AV1, true
	case "vp9":
		return VP9, true
	case "h.266", "h266":
		return H266, true
	default:
		return 0, false
	}
}

// HostMask returns the set of codecs this host advertises by default.
// Windows hosts advertise the full hardware-accelerated set; other
// platforms advertise H264 only, matching the platform's typical encoder
// availability.
func HostMask() uint32 {
	if runtime.GOOS == "windows" {
		return MaskH265 | MaskAV1 | MaskH264 | MaskVP9
	}
	return MaskH264
}

// priority is the fixed fallback order used by Select when no preferred
// codec is supplied or the preferred codec is unavailable. H266 is
// recognised (has a mask bit) but is never ranked: Select picks it only
// when it is explicitly preferred or is the sole shared codec.
var priority = []ID{H265, AV1, H264, VP9}

// Select negotiates a single codec from the intersection of hostMask and
// clientMask. If preferred is non-nil and present in the intersection, it
// is returned. Otherwise the first codec in the fixed priority list
// [H265, AV1, H264, VP9] present in the intersection is returned. Select
// returns ok=false iff the intersection is empty.
func Select(hostMask, clientMask uint32, preferred *ID) (ID, bool) {
	available := hostMask & clientMask
	if available == 0 {
		return 0, false
	}

	if preferred != nil && available&preferred.Mask() != 0 {
		return *preferred, true
	}

	for _, id := range priority {
		if available&id.Mask() != 0 {
			return id, true
		}
	}
	if available&MaskH266 != 0 {
		return H266, true
	}
	return 0, false
}
