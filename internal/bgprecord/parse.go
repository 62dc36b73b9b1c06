package bgprecord

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnrecognized is returned for lines that don't match any known dialect
// or action code within a dialect.
var ErrUnrecognized = errors.New("bgprecord: unrecognized line")

// Parse parses one ingress line in any of the four supported dialects:
// CBGP, BGP4MP, TABLE_DUMP2, or BGPSTREAM. Comment lines (leading '#') and
// blank lines yield (nil, nil).
func Parse(line string) (*Record, error) {
	line = strings.TrimRight(line, "\n")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}
	f := strings.Split(line, "|")

	switch {
	case len(f) > 1 && f[1] == "BGP4":
		return parseCBGP(f)
	case len(f) > 0 && f[0] == "BGP4MP":
		return parseBGP4MP(f)
	case len(f) > 0 && f[0] == "TABLE_DUMP2":
		return parseTableDump2(f)
	case len(f) > 0 && f[0] == "BGPSTREAM":
		return parseBGPStream(f)
	default:
		return nil, ErrUnrecognized
	}
}

func parseCBGP(f []string) (*Record, error) {
	if len(f) < 4 {
		return nil, ErrUnrecognized
	}
	peerID := f[0] + "-" + field(f, 4)
	ts, _ := strconv.ParseFloat(field(f, 2), 64)

	switch f[3] {
	case "A":
		asPath, err := parseASPath(field(f, 7), " ")
		if err != nil {
			return nil, err
		}
		asPath = CleanASPath(asPath)
		var peerAS int64
		if len(asPath) > 0 {
			peerAS = asPath[0]
		}
		return &Record{Type: TypeAdvertisement, PeerID: peerID, PeerAS: peerAS, Time: ts, Prefix: field(f, 6), ASPath: asPath, Dialect: DialectCBGP}, nil
	case "W":
		return &Record{Type: TypeWithdrawal, PeerID: peerID, Time: ts, Prefix: field(f, 6), Dialect: DialectCBGP}, nil
	case "CLOSE":
		return &Record{Type: TypeClose, PeerID: peerID, Time: ts, Dialect: DialectCBGP}, nil
	case "INFO":
		return &Record{Type: TypeInfo, PeerID: peerID, Time: ts, Prefix: field(f, 6) + "_" + field(f, 7), Dialect: DialectCBGP}, nil
	default:
		return nil, ErrUnrecognized
	}
}

func parseBGP4MP(f []string) (*Record, error) {
	if len(f) < 3 {
		return nil, ErrUnrecognized
	}
	peerAS, _ := strconv.ParseInt(field(f, 4), 10, 64)
	ts, _ := strconv.ParseFloat(field(f, 1), 64)

	switch f[2] {
	case "A":
		asPath, err := parseASPath(field(f, 6), " ")
		if err != nil {
			return nil, err
		}
		return &Record{Type: TypeAdvertisement, PeerID: field(f, 3), PeerAS: peerAS, Time: ts, Prefix: field(f, 5), ASPath: CleanASPath(asPath), Dialect: DialectBGP4MP}, nil
	case "W":
		return &Record{Type: TypeWithdrawal, PeerID: field(f, 3), PeerAS: peerAS, Time: ts, Prefix: field(f, 5), Dialect: DialectBGP4MP}, nil
	case "CLOSE":
		return &Record{Type: TypeClose, PeerID: field(f, 3), PeerAS: peerAS, Time: ts, Dialect: DialectBGP4MP}, nil
	default:
		return nil, ErrUnrecognized
	}
}

func parseTableDump2(f []string) (*Record, error) {
	if len(f) < 3 || f[2] != "B" {
		return nil, ErrUnrecognized
	}
	peerAS, _ := strconv.ParseInt(field(f, 4), 10, 64)
	ts, _ := strconv.ParseFloat(field(f, 1), 64)

	asPath, err := parseASPath(field(f, 6), " ")
	if err != nil {
		asPath = nil
	} else {
		asPath = CleanASPath(asPath)
	}
	return &Record{Type: TypeAdvertisement, PeerID: field(f, 3), PeerAS: peerAS, Time: ts, Prefix: field(f, 5), ASPath: asPath, Dialect: DialectTableDump2}, nil
}

func parseBGPStream(f []string) (*Record, error) {
	if len(f) < 3 {
		return nil, ErrUnrecognized
	}
	peerID := field(f, 1) + "-" + field(f, 3)
	peerAS, _ := strconv.ParseInt(field(f, 4), 10, 64)
	ts, _ := strconv.ParseFloat(field(f, 5), 64)

	switch f[2] {
	case "A", "R":
		asPath, err := parseASPath(field(f, 7), " ")
		if err != nil {
			return nil, err
		}
		return &Record{Type: TypeAdvertisement, PeerID: peerID, PeerAS: peerAS, Time: ts, Prefix: field(f, 6), ASPath: CleanASPath(asPath), Dialect: DialectBGPStream}, nil
	case "W":
		return &Record{Type: TypeWithdrawal, PeerID: peerID, PeerAS: peerAS, Time: ts, Prefix: field(f, 6), Dialect: DialectBGPStream}, nil
	case "CLOSE":
		return &Record{Type: TypeClose, PeerID: peerID, PeerAS: peerAS, Time: ts, Dialect: DialectBGPStream}, nil
	default:
		return nil, ErrUnrecognized
	}
}

func parseASPath(s, sep string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, sep)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// field returns f[i] or "" if out of range, mirroring the original
// collector's tolerance of short lines on trailing optional fields.
func field(f []string, i int) string {
	if i < 0 || i >= len(f) {
		return ""
	}
	return f[i]
}
