package main

import (
	"fmt"
	"os"

	"edgeguard/cmd/guardctl/cmd"
)

// Version is set by build flags.
var Version = "dev"

func main() {
	if err := cmd.NewRootCmd(Version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
