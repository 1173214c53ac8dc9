// Command foundation runs and inspects foundation pools, threads and timers.
package main

import (
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/zeus-go/foundation/internal/cli"
)

func main() {
	// Pools size themselves from GOMAXPROCS, so honor container CPU quotas.
	undo, err := maxprocs.Set()
	defer undo()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot set GOMAXPROCS: %v\n", err)
	}

	if err := cli.NewManager().Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
