// Package main is the entrypoint for the direct chat service. It serves the
// WebSocket event endpoint and the REST read paths over one HTTP listener.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aelexs/directchat/internal/config"
	"github.com/aelexs/directchat/internal/server"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{
		Name:               "directchat",
		PortFromConfig:     func(cfg *config.Config) int { return cfg.DirectChat.HTTPPort },
		GRPCPortFromConfig: func(cfg *config.Config) int { return cfg.DirectChat.GRPCPort },
		Setup:              setup,
	}, server.Listeners{})
}
