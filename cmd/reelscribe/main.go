package main

import (
	"os"

	"github.com/iconidentify/reelscribe/internal/cli"
)

var Version = "dev"

func main() {
	os.Exit(cli.Execute(Version))
}
