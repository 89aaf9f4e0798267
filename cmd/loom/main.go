package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"loom.sh/core/dispatch"
	"loom.sh/core/log"
	"loom.sh/core/runner"
)

func main() {
	cmd := &cli.Command{
		Name:  "loom",
		Usage: "pipeline runner and dispatch tool",
		Commands: []*cli.Command{
			runner.Command(),
			dispatch.Command(),
		},
	}

	ctx := context.Background()
	logger := log.New("loom")
	ctx = log.IntoContext(ctx, logger.With("command", cmd.Name))

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(-1)
	}
}
