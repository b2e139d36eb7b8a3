// Command utopian grows a utopia node: it scaffolds the node's goals,
// foundations and trust network, creates the critical topics and then lets a
// chat model research, synthesize and publish content into the node, pausing
// for the operator at planning and finalize checkpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/core-nexus/utopian/internal/hitl"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Execute(ctx)
	cancel()
	if err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints err the way the CLI reports failures. A declined
// checkpoint is an operator decision, not a failure, and prints only
// "cancelled".
func reportError(w io.Writer, err error) {
	if errors.Is(err, hitl.ErrDeclined) {
		fmt.Fprintln(w, "cancelled") //nolint:errcheck // best-effort stderr
		return
	}
	fmt.Fprintf(w, "✗ %v\n", err) //nolint:errcheck // best-effort stderr
}
