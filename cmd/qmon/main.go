// Command qmon is a terminal dashboard for a running qlientd daemon. It
// polls the daemon's /status endpoint and renders sync level, peer
// connection states, and outbox size, trimmed from the consensus
// server's multi-node cluster dashboard down to a single light-client
// view.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	var addr string
	flag.StringVar(&addr, "addr", "http://localhost:8080", "qlientd HTTP status address")
	flag.Parse()

	fetcher := NewStatusFetcher(addr)
	a := newApp(fetcher)

	if err := a.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "qmon: %v\n", err)
		os.Exit(1)
	}
}
