package main

import (
	"os"

	"sigbridge/cmd/sigbridge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
