package main

import (
	"fmt"
	"os"

	"github.com/featherfront/feather-front/cmd"
	"github.com/featherfront/feather-front/internal/conf"
	"github.com/featherfront/feather-front/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
