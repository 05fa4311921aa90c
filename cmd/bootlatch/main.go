// Command bootlatch boots an application host whose start can be delegated
// to an external caller.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bootlatch/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
