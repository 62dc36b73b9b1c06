package globalrib

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// RulesProgrammer installs and removes forwarding-plane match rules. The
// source shelled out to ovs-ofctl directly from the tag generator; here
// the same commands are logged and appended to the rule-history files
// named in SPEC_FULL.md (switch_rules, deleted_rules), ready to be piped
// to whatever forwarding-plane driver a deployment wires in.
type RulesProgrammer interface {
	// InstallPrimary programs the rule that rewrites dl_dst for frames
	// tagged with peerIP's primary-nexthop code.
	InstallPrimary(peerIP string, tag, nbBits int) error
	// InstallFastReroute programs a wildcard match for backup VMAC bits
	// with a TTL after which DeleteRule should be called.
	InstallFastReroute(peerID, vmacBits, bitmaskBits string) error
	// DeleteRule removes a previously installed fast-reroute rule.
	DeleteRule(vmacBits string) error
}

// LogProgrammer is a RulesProgrammer that only logs and records rule
// history to disk, grounded on the teacher's structured-logging style in
// place of the source's direct ovs-ofctl shell-outs.
type LogProgrammer struct {
	logger      *zap.Logger
	rulesOut    io.Writer
	deletedOut  io.Writer
}

// NewLogProgrammer returns a LogProgrammer appending to rulesOut and
// deletedOut (typically the switch_rules/deleted_rules files).
func NewLogProgrammer(logger *zap.Logger, rulesOut, deletedOut io.Writer) *LogProgrammer {
	return &LogProgrammer{logger: logger, rulesOut: rulesOut, deletedOut: deletedOut}
}

func (p *LogProgrammer) InstallPrimary(peerIP string, tag, nbBits int) error {
	line := fmt.Sprintf("priority=10 dl_dst=%s/%s mod_dl_dst=%s\n",
		toBinary(tag, nbBits), onesMask(nbBits), peerIP)
	p.logger.Info("installing primary rule", zap.String("peer_ip", peerIP), zap.Int("tag", tag))
	_, err := io.WriteString(p.rulesOut, line)
	return err
}

func (p *LogProgrammer) InstallFastReroute(peerID, vmacBits, bitmaskBits string) error {
	line := fmt.Sprintf("priority=100 dl_dst=%s/%s mod_dl_dst=backup(%s)\n", vmacBits, bitmaskBits, peerID)
	p.logger.Info("installing fast-reroute rule", zap.String("peer_id", peerID), zap.String("vmac", vmacBits))
	_, err := io.WriteString(p.rulesOut, line)
	return err
}

func (p *LogProgrammer) DeleteRule(vmacBits string) error {
	p.logger.Info("expiring fast-reroute rule", zap.String("vmac", vmacBits))
	_, err := io.WriteString(p.deletedOut, vmacBits+"\n")
	return err
}

func onesMask(nbBits int) string {
	s := ""
	for i := 0; i < nbBits; i++ {
		s += "1"
	}
	return s
}

// FRRule is a pending fast-reroute rule awaiting TTL expiry.
type FRRule struct {
	VMACBits string
	Time     float64
}

// Timestamp satisfies window.Timestamped so FRRule can ride the same
// generic time-ordered queue used for the withdrawal window.
func (r FRRule) Timestamp() float64 { return r.Time }

// DefaultFRTTLSeconds is the fast-reroute rule lifetime from SPEC_FULL.md
// §4.8 (5 minutes).
const DefaultFRTTLSeconds float64 = 5 * 60
