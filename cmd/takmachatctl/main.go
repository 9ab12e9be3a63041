package main

import (
	"os"

	"github.com/vtakmakov/takmachat/cmd/takmachatctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
