// Package main is the entry point for the lakehouse binary.
package main

import (
	"fmt"
	"os"

	"lakehouse/internal/config"
	cli "lakehouse/pkg/cli"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(cli.Execute(cfg))
}
