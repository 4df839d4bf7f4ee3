package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/bunkerwars/engine/app/simbot"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	defer cancel()

	app := simbot.Initialize(ctx)

	app.Start(ctx)
}
