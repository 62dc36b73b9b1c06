package globalrib

import (
	"fmt"
	"net"
	"strconv"
)

// TagGenerator allocates virtual next-hop IPs and builds virtual MAC tags
// from the RIB's current primary/backup routes. One real peer IP maps to
// one short tag, reused across every prefix it appears in; the VMAC
// concatenates the primary tag with one backup tag per AS-path depth (up
// to maxDepth), plus whatever AS-link encoding partial the peer
// supervisor already attached to the route.
type TagGenerator struct {
	rib          *RIB
	nexthopBits  int
	maxDepth     int
	vnhBase      uint32
	vnhCounter   uint32
	tagByPeer    map[string]int
	vnhByVMAC    map[string]string
	rules        RulesProgrammer
}

// NewTagGenerator returns a TagGenerator allocating virtual IPs out of
// ipCIDR (e.g. "2.0.0.128/25") and installing forwarding rules through
// rules as new peer tags are minted.
func NewTagGenerator(rib *RIB, nexthopBits, maxDepth int, ipCIDR string, rules RulesProgrammer) (*TagGenerator, error) {
	_, ipNet, err := net.ParseCIDR(ipCIDR)
	if err != nil {
		return nil, fmt.Errorf("globalrib: parsing vnh prefix %q: %w", ipCIDR, err)
	}
	base := ipToUint32(ipNet.IP)

	return &TagGenerator{
		rib:         rib,
		nexthopBits: nexthopBits,
		maxDepth:    maxDepth,
		vnhBase:     base,
		tagByPeer:   make(map[string]int),
		vnhByVMAC:   make(map[string]string),
		rules:       rules,
	}, nil
}

func ipToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

func uint32ToIP(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// tagFor returns peerIP's short tag, minting one (and installing its
// primary-nexthop rule) on first use.
func (g *TagGenerator) tagFor(peerIP string) int {
	if tag, ok := g.tagByPeer[peerIP]; ok {
		return tag
	}
	tag := len(g.tagByPeer)
	g.tagByPeer[peerIP] = tag
	if g.rules != nil {
		g.rules.InstallPrimary(peerIP, tag, g.nexthopBits)
	}
	return tag
}

func toBinary(n, width int) string {
	s := strconv.FormatInt(int64(n), 2)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// GetVNH returns the virtual next-hop IP and VMAC for prefix's current
// best route. If fewer than two routes exist for the prefix, the real
// peer IP is returned directly and vmac is empty (BackupMissing: there is
// no alternate to encode). At a depth where every alternate route crosses
// that depth's AS link, the backup tag is the first different-peer
// route's (GetBackupAvoidingASLink's fallback); all-zero backup bits are
// written only when no different-peer route exists at all.
func (g *TagGenerator) GetVNH(prefix string) (nexthop string, vmac string, ok bool) {
	routes := g.rib.byPrefix[prefix]
	if len(routes) == 0 {
		return "", "", false
	}
	if len(routes) < 2 {
		return routes[0].PeerIP, "", true
	}

	primary := routes[0]
	vmacBits := toBinary(g.tagFor(primary.PeerIP), g.nexthopBits)

	path := primary.ASPath
	depthCount := len(path) - 1
	if depthCount > g.maxDepth {
		depthCount = g.maxDepth
	}
	for d := 0; d < depthCount; d++ {
		link := ASLink{path[d], path[d+1]}
		backup := g.rib.GetBackupAvoidingASLink(primary.PeerIP, prefix, link, false)
		if backup == nil {
			vmacBits += toBinary(0, g.nexthopBits)
			continue
		}
		vmacBits += toBinary(g.tagFor(backup.PeerIP), g.nexthopBits)
	}

	for len(vmacBits) < g.nexthopBits*(g.maxDepth+1) {
		vmacBits += "0"
	}
	vmacBits += primary.PartialVMAC

	cached, seen := g.vnhByVMAC[vmacBits]
	if seen {
		return cached, vmacBits, true
	}

	g.vnhCounter++
	ip := uint32ToIP(g.vnhBase + g.vnhCounter)
	g.vnhByVMAC[vmacBits] = ip
	return ip, vmacBits, true
}
