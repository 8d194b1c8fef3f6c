package main

import (
	"fmt"
	"os"

	"github.com/go-delve/hwbreak/cmd/hwbreak/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
