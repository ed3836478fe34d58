package main

import (
	"os"

	"github.com/hxlab/hxstream/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
