package main

import (
	"os"

	"eptp/cmd/eptp/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
