// Command zen drives a single prompt through planning, task generation,
// parallel implementation, merge, and documentation against a local git
// repository.
package main

import (
	"fmt"
	"os"

	_ "github.com/zenweave/zen/internal/agent/claudecode"
	_ "github.com/zenweave/zen/internal/agent/codex"
	"github.com/zenweave/zen/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
