package main

import (
	"os"

	"github.com/blikh/discord-translation-relay/cmd/relay/commands"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := commands.NewRootCommand(version).Execute(); err != nil {
		os.Exit(1)
	}
}
