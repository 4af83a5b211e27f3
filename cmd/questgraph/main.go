package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/questforge/questgraph/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Main(ctx)
	stop()
	os.Exit(code)
}
