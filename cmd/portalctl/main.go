package main

import (
	"os"

	"github.com/nexushost/portal/cmd/portalctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
