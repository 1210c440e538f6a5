package main

import (
	"os"

	"github.com/armadaproject/elasticsched/cmd/scheduler/cmd"
	"github.com/armadaproject/elasticsched/internal/common/logging"
)

func main() {
	logging.ConfigureLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
