package segment

import "bytes"

// keyframeParams holds the most recently observed H.264 SPS/PPS so they can
// be prepended to every keyframe access unit. Decoders (and late-joining
// players after a rotation) need SPS/PPS available on every keyframe, not
// just the first one in the stream.
type keyframeParams struct {
	sps []byte
	pps []byte
}

const (
	nalTypeSPS = 7
	nalTypePPS = 8
	nalTypeIDR = 5
)

func nalType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1F
}

// observe records any SPS/PPS present in au.
func (k *keyframeParams) observe(au [][]byte) {
	for _, nalu := range au {
		switch nalType(nalu) {
		case nalTypeSPS:
			if !bytes.Equal(k.sps, nalu) {
				k.sps = append([]byte(nil), nalu...)
			}
		case nalTypePPS:
			if !bytes.Equal(k.pps, nalu) {
				k.pps = append([]byte(nil), nalu...)
			}
		}
	}
}

// prependIfMissing ensures a keyframe access unit carries SPS/PPS, inserting
// the last-known ones ahead of it for whichever of the two the au doesn't
// already contain.
func (k *keyframeParams) prependIfMissing(au [][]byte) [][]byte {
	hasSPS, hasPPS := false, false
	for _, nalu := range au {
		switch nalType(nalu) {
		case nalTypeSPS:
			hasSPS = true
		case nalTypePPS:
			hasPPS = true
		}
	}
	if hasSPS && hasPPS {
		return au
	}
	var prefix [][]byte
	if k.sps != nil && !hasSPS {
		prefix = append(prefix, k.sps)
	}
	if k.pps != nil && !hasPPS {
		prefix = append(prefix, k.pps)
	}
	if len(prefix) == 0 {
		return au
	}
	return append(prefix, au...)
}
