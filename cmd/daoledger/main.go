package main

import (
	"os"

	"github.com/PageDAO/DAO-Tools/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
