package main

import (
	"os"

	"github.com/S-feLayer/SafeLayer-Chat/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
