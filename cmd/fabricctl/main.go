package main

import (
	"os"

	"github.com/opengovern/fabric-bridge/cmd/fabricctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
