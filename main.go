package main

import (
	"os"

	"github.com/serisow/sagefemme/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
