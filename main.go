package main

import (
	"os"

	"github.com/maxkimambo/taskflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// Errors are already reported by the command that failed.
		os.Exit(1)
	}
}
