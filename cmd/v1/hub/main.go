// Command hub runs the STYLY-NetSync synchronization server.
package main

import (
	"fmt"
	"os"

	"github.com/vrnetsync/hub/cmd/v1/hub/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
