// Package bgprecord parses pre-processed BGP update lines into Records and
// cleans AS paths of prepending and loops.
package bgprecord

import "fmt"

// MessageType is the kind of BGP message a Record carries.
type MessageType string

const (
	TypeAdvertisement MessageType = "A"
	TypeWithdrawal    MessageType = "W"
	TypeClose         MessageType = "CLOSE"
	TypeInfo          MessageType = "INFO"
)

// Dialect identifies which upstream collector format a line came from.
type Dialect string

const (
	DialectCBGP       Dialect = "CBGP"
	DialectBGP4MP     Dialect = "BGP4MP"
	DialectTableDump2 Dialect = "TABLE_DUMP2"
	DialectBGPStream  Dialect = "BGPSTREAM"
)

// Record is a single parsed BGP update, advertisement, withdrawal, or
// session-control line.
type Record struct {
	Type     MessageType
	PeerID   string
	PeerAS   int64
	Time     float64
	Prefix   string
	ASPath   []int64
	Dialect  Dialect
}

func (r *Record) String() string {
	if r.Prefix != "" {
		return fmt.Sprintf("%s|%s|%s|%d|%g|%s|%v", r.Dialect, r.Type, r.PeerID, r.PeerAS, r.Time, r.Prefix, r.ASPath)
	}
	return fmt.Sprintf("%s|%s|%s|%d|%g|%v", r.Dialect, r.Type, r.PeerID, r.PeerAS, r.Time, r.ASPath)
}

// CleanASPath removes consecutive prepended duplicates and rejects
// non-adjacent loops. It returns a nil slice if a loop is found.
func CleanASPath(asPath []int64) []int64 {
	var prev int64
	havePrev := false
	seen := make(map[int64]struct{}, len(asPath))
	out := make([]int64, 0, len(asPath))

	for _, asn := range asPath {
		if !havePrev || asn != prev {
			if _, ok := seen[asn]; ok {
				return nil
			}
			seen[asn] = struct{}{}
			out = append(out, asn)
		}
		prev = asn
		havePrev = true
	}
	return out
}
