package codec

import "testing"

func TestFromNameCanonicalization(t *testing.T) {
	cases := map[string]ID{
		"h.264":       H264,
		"  H264  ":    H264,
		"H.264 High":  H264,
		"h.265":       H265,
		"HEVC":        H265,
		"h265":        H265,
		"av1":         AV1,
		"AV1":         AV1,
		"vp9":         VP9,
		"h.266":       H266,
		"h266":        H266,
	}
	for name, want := range cases {
		got, ok := FromName(name)
		if !ok {
			t.Fatalf("FromName(%q): expected a match", name)
		}
		if got != want {
			t.Fatalf("FromName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFromNameRejectsUnknown(t *testing.T) {
	if _, ok := FromName("mpeg2"); ok {
		t.Fatal("expected mpeg2 to be unrecognized")
	}
}

func TestSelectPreferredWhenAvailable(t *testing.T) {
	preferred := H264
	got, ok := Select(MaskH264|MaskH265, MaskH264|MaskAV1, &preferred)
	if !ok || got != H264 {
		t.Fatalf("got (%v, %v), want (H264, true)", got, ok)
	}
}

func TestSelectFallsBackToPriorityOrder(t *testing.T) {
	// host={H264,H265,AV1}, client={H264,AV1}, preferred=H265 -> AV1
	// (preferred absent in intersection; priority picks H265 absent, then AV1)
	preferred := H265
	got, ok := Select(MaskH264|MaskH265|MaskAV1, MaskH264|MaskAV1, &preferred)
	if !ok || got != AV1 {
		t.Fatalf("got (%v, %v), want (AV1, true)", got, ok)
	}
}

func TestSelectNoPreferredUsesPriorityOrder(t *testing.T) {
	got, ok := Select(MaskH264|MaskVP9, MaskH264|MaskVP9, nil)
	if !ok || got != H264 {
		t.Fatalf("got (%v, %v), want (H264, true)", got, ok)
	}
}

func TestSelectReturnsFalseOnEmptyIntersection(t *testing.T) {
	_, ok := Select(MaskH264, MaskVP9, nil)
	if ok {
		t.Fatal("expected no compatible codec")
	}
}

func TestSelectResultAlwaysInIntersection(t *testing.T) {
	allMasks := []uint32{MaskH264, MaskH265, MaskAV1, MaskVP9, MaskH266}
	for _, hostMask := range allMasks {
		for _, clientMask := range allMasks {
			for _, p := range []*ID{nil, ptr(H264), ptr(H265), ptr(AV1), ptr(VP9), ptr(H266)} {
				got, ok := Select(hostMask, clientMask, p)
				available := hostMask & clientMask
				if available == 0 {
					if ok {
						t.Fatalf("expected no selection when intersection is empty, got %v", got)
					}
					continue
				}
				if !ok {
					t.Fatalf("expected a selection for available mask %b", available)
				}
				if available&got.Mask() == 0 {
					t.Fatalf("selected codec %v not in available mask %b", got, available)
				}
			}
		}
	}
}

func ptr(id ID) *ID { return &id }
