package config

import (
	"fmt"
	"strconv"
	"strings"

	"swift-predict/internal/burst"
)

// CLIFlags is the per-run prediction surface, parsed with kong. Unlike
// ServiceConfig (ambient, YAML+env), these tune the BPA/encoding/window
// parameters of a single run and are meant to be passed on the command
// line or scripted, mirroring the original's argparse surface.
type CLIFlags struct {
	Config string `name:"config" help:"Path to the service YAML config file."`
	Port   int    `name:"port" default:"7000" help:"TCP feed listen port (feed.mode=tcp)."`

	WinSize              float64 `name:"win_size" default:"60" help:"Withdrawal window size, in seconds."`
	StartStop            string  `name:"start_stop" default:"50,35" help:"START,END withdrawal-window thresholds for burst open/close."`
	MinBurstSize         int     `name:"min_burst_size" default:"100" help:"Withdrawal count before the first periodic BPA run."`
	BpaFreq              int     `name:"bpa_freq" default:"100" help:"Withdrawal count between periodic BPA runs; 0 disables re-runs."`
	PW                   float64 `name:"p_w" default:"1" help:"Precision weight in the Fowlkes-Mallows score."`
	RW                   float64 `name:"r_w" default:"1" help:"Recall weight in the Fowlkes-Mallows score."`
	BpaAlgo              string  `name:"bpa_algo" enum:"naive,bpa-single,bpa-multiple" default:"naive" help:"Burst prediction search mode."`
	NbBitsASPath         int     `name:"nb_bits_aspath" default:"33" help:"Total bit budget for the AS-path bitfield encoding."`
	NbBitsNexthop        int     `name:"nb_bits_nexthop" default:"16" help:"Bit width of each virtual-next-hop tag."`
	RunEncodingThreshold int     `name:"run_encoding_threshold" default:"1000000" help:"RIB size at which bitfield encoding initializes."`
	MinPercentile        float64 `name:"min_percentile" default:"5" help:"Percentile (0-100) of accepted depth_counts below which a new encoded edge is rejected."`

	NoRIB         bool `name:"no_rib" help:"Disable the global RIB / VNH server entirely."`
	BpaValidation bool `name:"bpa_validation" help:"Run the ground-truth validation controller instead of production fast-reroute."`
	Silent        bool `name:"silent" help:"Suppress per-edge prefix-set bookkeeping in the AS-topology graph."`

	RIBSocket string `name:"rib_socket" default:"/tmp/swift-rib.sock" help:"Unix socket each peer pipeline dials to reach the global RIB server."`
	VNHCidr   string `name:"vnh_cidr" default:"2.0.0.128/25" help:"Address range the virtual next-hop IPs allocated for backup routes are drawn from."`

	BurstsDir string `name:"bursts_dir" default:"./bursts" help:"Directory for per-burst real/predicted prefix logs."`
	LogDir    string `name:"log_dir" default:"./logs" help:"Directory for forwarding-rule install/delete logs."`

	Feed     string `name:"feed" enum:"tcp,kafka" default:"tcp" help:"Ingress feed adapter."`
	LogLevel string `name:"log-level" help:"Override service.log_level."`
}

// ParseStartStop parses --start_stop "START,END" into its two integer thresholds.
func (c *CLIFlags) ParseStartStop() (start, end int, err error) {
	parts := strings.SplitN(c.StartStop, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("config: --start_stop must be START,END (got %q)", c.StartStop)
	}
	start, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("config: --start_stop start threshold: %w", err)
	}
	end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("config: --start_stop end threshold: %w", err)
	}
	return start, end, nil
}

// Algo maps the validated --bpa_algo string onto burst.Algo.
func (c *CLIFlags) Algo() burst.Algo {
	return burst.Algo(c.BpaAlgo)
}
