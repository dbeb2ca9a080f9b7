package main

import (
	"os"

	"srrt/cmd/srrt/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
