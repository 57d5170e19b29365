package main

import (
	"fmt"
	"os"

	"github.com/projecteru2/vmsentinel/cmd"
	cmdcore "github.com/projecteru2/vmsentinel/cmd/core"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmdcore.ExitCode(err))
	}
}
