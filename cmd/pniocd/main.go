// Command pniocd runs the PROFINET IO Controller core: discovery, AR
// connection management, cyclic exchange, and the RTU registry/process
// image, as a single long-running daemon with a cobra-based CLI front end.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
