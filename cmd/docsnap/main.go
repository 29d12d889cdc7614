package main

import (
	"os"

	"github.com/danieljhkim/docsnap/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)

	if err := cli.Execute(); err != nil {
		cli.PrintError(os.Stderr, err.Error())
		os.Exit(1)
	}
}
