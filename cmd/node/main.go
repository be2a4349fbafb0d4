package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"paygateway/internal/app"
)

func main() {
	gateway := flag.Bool("gateway", false, "enable gateway role")
	provider := flag.Bool("provider", false, "enable provider role")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nodeCfg := app.Config{
		Roles: app.Roles{
			Gateway:  *gateway,
			Provider: *provider,
		},
	}

	if !nodeCfg.Roles.Any() {
		log.Fatal("no role selected; pass one or more of --gateway --provider")
	}

	if err := app.Run(ctx, nodeCfg); err != nil {
		log.Fatal(err)
	}
}
