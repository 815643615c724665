package main

import (
	"os"

	"github.com/vmgr-dev/vmgr/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
