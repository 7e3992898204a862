package main

import (
	"context"
	"os"

	"github.com/kbukum/cmdkit/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:]))
}
