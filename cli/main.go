package main

import (
	"os"

	"github.com/lensai/lensai-stack/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
