package main

import (
	"os"

	"github.com/lacquerai/engine/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
