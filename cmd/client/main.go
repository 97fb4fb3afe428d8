package main

import (
	"os"

	"github.com/dmitrijs2005/conformsync/internal/client/cli"
)

func main() {
	if err := cli.Execute(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		os.Exit(1)
	}
}
