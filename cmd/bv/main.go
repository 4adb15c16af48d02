package main

import (
	"os"

	"blobvault/cmd/bv/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
