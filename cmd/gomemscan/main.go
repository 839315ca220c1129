package main

import (
	"os"

	"gomemscan/cmd/gomemscan/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
