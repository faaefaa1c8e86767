// Command autoscaled runs the queue-worker autoscaling supervisor: it
// watches configured queues, decides target worker counts, and spawns or
// terminates worker processes to match.
package main

import (
	"fmt"
	"os"

	"github.com/autoscaled/autoscaled/cmd/autoscaled/commands"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	commands.SetVersionInfo(version, buildTime, gitCommit)
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
