package main

import (
	"os"

	"github.com/priscilla100/goose-llm/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
