package main

import (
	"fmt"
	"os"

	"github.com/marmos91/sharelease/cmd/leasecrawlerd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
