package main

import (
	"os"

	"github.com/InterCode-Team/open-collaboration-tools/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
