package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yanglog/yanglog/internal/server"
	"github.com/yanglog/yanglog/internal/server/cli"
	"github.com/yanglog/yanglog/internal/server/config"
)

func main() {
	args := os.Args[1:]
	if cli.IsHelp(args) {
		cli.Usage(os.Stdout)
		return
	}

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err = app.Run(ctx, args)
	_ = app.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
