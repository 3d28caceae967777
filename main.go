package main

import (
	"os"

	"github.com/lvcoi/freeytzone/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
