// cmd/tracker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"exectrack/internal/api/rpc"
	"exectrack/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(func(target string) (cli.Backend, error) {
		client, err := rpc.Dial(target)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err))
		stop()
		os.Exit(1)
	}
}
