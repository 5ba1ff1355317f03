package main

import (
	"fmt"
	"os"

	"github.com/livereview/prchat/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	err := cmd.NewCLI(version).Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
