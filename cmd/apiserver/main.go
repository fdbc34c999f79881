// Command apiserver runs the BizAtlas HTTP API.  It is `bizatlas serve`
// packaged as its own binary for container images.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/BizAtlas/internal/interfaces/cli"
)

var version = "dev"

func main() {
	cli.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand()
	root.SetArgs(append([]string{"serve"}, os.Args[1:]...))
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		stop()
		os.Exit(1)
	}
}

//Personal.AI order the ending
