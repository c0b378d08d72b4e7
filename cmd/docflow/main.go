package main

import (
	"os"

	"github.com/MeKo-Tech/docflow/cmd/docflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
