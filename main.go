package main

import (
	"os"

	"forgeloop/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
