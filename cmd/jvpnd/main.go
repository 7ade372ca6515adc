package main

import (
	"os"

	"github.com/jarvisvpn/jvpnd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
