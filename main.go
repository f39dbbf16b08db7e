// Package main is the entry point for the scanguard port-scan packet filter.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/scanguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
