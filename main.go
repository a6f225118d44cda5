package main

import (
	"os"

	"github.com/cirque-corp/chromeos-cirque-fw-update/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
