package globalrib

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"swift-predict/internal/window"
)

// Server is the Unix-domain socket endpoint every peer supervisor
// connects to: it accepts advertisement, withdrawal, and fast-reroute
// lines, applies them to the RIB, and writes primary-route-change lines
// to stdout.
type Server struct {
	rib     *RIB
	tags    *TagGenerator
	rules   RulesProgrammer
	frQueue *window.Queue[FRRule]
	logger  *zap.Logger
	stdout  io.Writer
}

// NewServer returns a Server bound to rib. frTTLSeconds is the fast
// reroute rule expiry window (SPEC_FULL.md default 300s).
func NewServer(rib *RIB, tags *TagGenerator, rules RulesProgrammer, logger *zap.Logger, stdout io.Writer, frTTLSeconds float64) *Server {
	return &Server{
		rib:     rib,
		tags:    tags,
		rules:   rules,
		frQueue: window.New[FRRule](frTTLSeconds),
		logger:  logger,
		stdout:  stdout,
	}
}

// Serve accepts connections on socketPath until ctx is cancelled. Each
// connection is handled in its own goroutine (one per peer supervisor);
// the RIB itself is mutated only from these goroutines, but FlowsQueue
// TTL expiry is driven by message timestamps rather than wall clock, so
// callers process one connection's lines in order.
func (s *Server) Serve(ctx context.Context, socketPath string) error {
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("globalrib: listen on %s: %w", socketPath, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("globalrib: accept: %w", err)
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := s.HandleLine(scanner.Text()); err != nil {
			s.logger.Warn("globalrib: dropping malformed line", zap.String("line", scanner.Text()), zap.Error(err))
		}
	}
}

// HandleLine parses and applies one egress-to-C9 line: an advertisement
// (peer_ip|prefix|ts|aspath_text|vmac_bits), a withdrawal
// (peer_ip|prefix|ts), or a fast-reroute instruction
// (FR|peer_ip|vmac_bits|bitmask_bits|depth|ts).
func (s *Server) HandleLine(line string) error {
	f := strings.Split(line, "|")
	if len(f) == 0 {
		return fmt.Errorf("empty line")
	}

	if f[0] == "FR" {
		return s.handleFastReroute(f)
	}

	switch len(f) {
	case 3:
		return s.handleWithdrawal(f)
	case 5:
		return s.handleAdvertisement(f)
	default:
		return fmt.Errorf("unrecognized field count %d", len(f))
	}
}

func (s *Server) handleAdvertisement(f []string) error {
	peerIP, prefix, asPathText, partialVMAC := f[0], f[1], f[3], f[4]

	var asPath []int64
	for _, tok := range strings.Fields(asPathText) {
		asn, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing as-path token %q: %w", tok, err)
		}
		asPath = append(asPath, asn)
	}

	route := &Route{Prefix: prefix, PeerIP: peerIP, ASPath: asPath, PartialVMAC: partialVMAC}
	_, newBest, _, _, _ := s.rib.Announce(route)

	if newBest != nil {
		s.emitPrimaryChange(prefix, newBest)
	}
	return nil
}

func (s *Server) handleWithdrawal(f []string) error {
	peerIP, prefix := f[0], f[1]

	_, newBest, withdrawn, _, _ := s.rib.Withdraw(peerIP, prefix)
	if withdrawn == nil {
		return nil
	}

	if newBest != nil {
		s.emitPrimaryChange(prefix, newBest)
	} else {
		fmt.Fprintf(s.stdout, "W|%s\n", prefix)
	}
	return nil
}

func (s *Server) handleFastReroute(f []string) error {
	if len(f) != 6 {
		return fmt.Errorf("FR line wants 6 fields, got %d", len(f))
	}
	peerID, vmacBits, bitmaskBits, _, tsText := f[1], f[2], f[3], f[4], f[5]
	ts, err := strconv.ParseFloat(tsText, 64)
	if err != nil {
		return fmt.Errorf("parsing FR timestamp: %w", err)
	}

	for _, expired := range s.frQueue.RefreshIter(ts) {
		s.rules.DeleteRule(expired.VMACBits)
	}

	if s.rules != nil {
		s.rules.InstallFastReroute(peerID, vmacBits, bitmaskBits)
	}
	s.frQueue.Push(FRRule{VMACBits: vmacBits, Time: ts})
	return nil
}

func (s *Server) emitPrimaryChange(prefix string, best *Route) {
	vnhIP, vmac, ok := s.tags.GetVNH(prefix)
	if !ok {
		return
	}
	aspathText := make([]string, len(best.ASPath))
	for i, asn := range best.ASPath {
		aspathText[i] = strconv.FormatInt(asn, 10)
	}
	fmt.Fprintf(s.stdout, "A|%s|%s|(%s)|%s\n", prefix, vnhIP, vmac, strings.Join(aspathText, " "))
}
