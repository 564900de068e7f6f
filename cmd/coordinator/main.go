// coordinator is the operator CLI for the coordination engine.
//
// Usage:
//
//	coordinator record --project p1 --type blocker --user u1 --entity issue-1 \
//	    --severity HIGH --meta blockerDays=3 --meta dependencyOwnerUserId=dep-1
//	coordinator process --project p1
//	coordinator sweep --project p1
//	coordinator notify deliver --project p1
//	coordinator telemetry dismissed --trigger <id>
//	coordinator prefs set --project p1 --user u1 --mute STANDUPS --quiet 22-6
//	coordinator run
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
