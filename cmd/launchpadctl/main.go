// Command launchpadctl runs operator tasks against the portal database.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/launchpad-portal/launchpad/cmd/launchpadctl/cli"
)

func main() { os.Exit(run()) }

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.RootCommand(cli.Options{}).ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
