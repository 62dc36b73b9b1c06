// Command swift-feed replays a pipe-delimited BGP update dump file over a
// TCP connection to a running swift-server, line by line, comment lines
// (leading '#') skipped. Ported from original_source/code/client.py.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/alecthomas/kong"
)

var cli struct {
	Host   string `arg:"" help:"Server host or IP."`
	Port   int    `arg:"" help:"Server TCP port."`
	Infile string `arg:"" help:"Path to the pipe-delimited dump file to replay."`
}

func main() {
	kong.Parse(&cli, kong.Name("swift-feed"),
		kong.Description("Replay a BGP update dump file to a swift-server TCP feed."))

	addr := fmt.Sprintf("%s:%d", cli.Host, cli.Port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "swift-feed: connecting to %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Fprintf(os.Stderr, "swift-feed: connected to %s\n", addr)

	f, err := os.Open(cli.Infile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "swift-feed: opening %s: %v\n", cli.Infile, err)
		os.Exit(1)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	sent := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := fmt.Fprintln(conn, line); err != nil {
			fmt.Fprintf(os.Stderr, "swift-feed: write: %v\n", err)
			os.Exit(1)
		}
		sent++
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "swift-feed: reading %s: %v\n", cli.Infile, err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "swift-feed: sent %d lines\n", sent)
}
