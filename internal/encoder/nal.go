package encoder

// splitAnnexB scans an Annex-B byte stream and returns the individual NAL
// units it contains (without start codes) plus any trailing bytes that do
// not yet form a complete NAL unit (because the next start code has not
// arrived from the pipe yet). Callers should keep feeding the remainder back
// in on the next read.
func splitAnnexB(buf []byte) (nalus [][]byte, remainder []byte) {
	starts := findStartCodes(buf)
	if len(starts) == 0 {
		return nil, buf
	}

	for i, s := range starts {
		nalStart := s.offset + s.codeLen
		var nalEnd int
		if i+1 < len(starts) {
			nalEnd = starts[i+1].offset
		} else {
			// Last NAL in this chunk: it may be incomplete, hold it back.
			remainder = buf[s.offset:]
			break
		}
		if nalEnd > nalStart {
			nalus = append(nalus, buf[nalStart:nalEnd])
		}
	}
	return nalus, remainder
}

type startCode struct {
	offset  int
	codeLen int
}

// findStartCodes locates every Annex-B start code (00 00 01 or 00 00 00 01)
// in buf.
func findStartCodes(buf []byte) []startCode {
	var found []startCode
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] != 0x00 || buf[i+1] != 0x00 {
			continue
		}
		if buf[i+2] == 0x01 {
			found = append(found, startCode{offset: i, codeLen: 3})
			i += 2
			continue
		}
		if i+3 < len(buf) && buf[i+2] == 0x00 && buf[i+3] == 0x01 {
			found = append(found, startCode{offset: i, codeLen: 4})
			i += 3
		}
	}
	return found
}

// nalType returns the H.264 NAL unit type of a start-code-stripped NAL unit.
func nalType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1F
}

const (
	nalTypeSlice = 1
	nalTypeIDR   = 5
	nalTypeSPS   = 7
	nalTypePPS   = 8
)

func isVCLSlice(t byte) bool {
	return t == nalTypeSlice || t == nalTypeIDR
}

// annexBEncode reassembles a slice of NAL units into an Annex-B byte stream
// with 4-byte start codes, matching what the segment engine's MPEG-TS muxer
// expects as input.
func annexBEncode(nalus [][]byte) []byte {
	size := 0
	for _, n := range nalus {
		size += 4 + len(n)
	}
	out := make([]byte, 0, size)
	for _, n := range nalus {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, n...)
	}
	return out
}
