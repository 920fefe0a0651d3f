// Command quarry compiles entity metamodels and query definitions into
// dialect SQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/asaidimu/go-quarry/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
