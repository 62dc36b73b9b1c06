package peer

import (
	"strings"

	"swift-predict/internal/bpa"
	"swift-predict/internal/encoding"
)

// buildVMAC concatenates asPath's per-depth codes from enc into one
// partial VMAC tag, right-padded with zero bits up to enc's full bit
// budget. Positions at a depth enc doesn't encode are skipped entirely,
// matching the source's "if deep in encoding.mapping" guard.
func buildVMAC(enc *encoding.Encoding, asPath []int64) string {
	if enc == nil {
		return ""
	}
	var sb strings.Builder
	for deep := 1; deep <= len(asPath); deep++ {
		m := enc.Mapping(deep)
		if m == nil {
			continue
		}
		sb.WriteString(m.GetMappingString(asPath[deep-1]))
	}
	out := sb.String()
	for len(out) < enc.MaxBytes() {
		out += "0"
	}
	return out
}

// buildFRPartial builds the VMAC and bitmask bit strings a fast-reroute
// instruction carries for edge found at depth: every mapped position
// other than depth (the failed edge's tail AS) and depth+1 (its head AS)
// contributes zero bits to both the VMAC and the bitmask, so the
// forwarding plane's wildcard match only examines the two positions that
// matter.
func buildFRPartial(enc *encoding.Encoding, edge bpa.Link, depth int) (vmacPartial, bitmaskPartial string) {
	var vb, bb strings.Builder
	for d := 2; d <= enc.MaxDepth()+1; d++ {
		m := enc.Mapping(d)
		if m == nil {
			continue
		}
		switch d {
		case depth:
			vb.WriteString(m.GetMappingString(edge.From))
			bb.WriteString(strings.Repeat("1", m.NbBytes()))
		case depth + 1:
			vb.WriteString(m.GetMappingString(edge.To))
			bb.WriteString(strings.Repeat("1", m.NbBytes()))
		default:
			vb.WriteString(strings.Repeat("0", m.NbBytes()))
			bb.WriteString(strings.Repeat("0", m.NbBytes()))
		}
	}
	return vb.String(), bb.String()
}
