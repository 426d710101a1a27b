// Command kgrbac runs the dataset-level RBAC demo against a knowledge engine.
package main

import (
	"os"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
