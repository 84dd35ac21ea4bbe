package main

import (
	"os"

	"github.com/quorum-labs/parley-cli/internal/adapters/driving/cli"
	"github.com/quorum-labs/parley-cli/internal/logger"
)

func main() {
	if err := cli.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
