// The event relay bridges engine events from Redis pub/sub onto WebSocket
// connections, so browsers can follow executions live without holding an
// HTTP stream open against flow-server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/flow/common/bootstrap"
	"github.com/lyzr/flow/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	components, err := bootstrap.Setup(ctx, "event-relay",
		bootstrap.WithoutDB(),
		bootstrap.WithoutQueue(),
		bootstrap.WithoutCache(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap event-relay: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	log := components.Logger
	if components.Redis == nil {
		log.Error("event-relay requires Redis; set REDIS_HOST")
		os.Exit(1)
	}

	hub := NewHub(log)
	go hub.Run()

	subscriber := NewSubscriber(components.Redis.GetUnderlying(), hub, log)
	if err := subscriber.Start(ctx); err != nil {
		log.Error("event subscription failed", "error", err)
		os.Exit(1)
	}

	handler := NewHandler(hub, components.Redis, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	e.GET("/ws", handler.Subscribe) // ?executionId=<id> for one run, omit for the firehose
	e.GET("/health", handler.Health)

	srv := server.New("event-relay", components.Config.Service.Port, e, log)
	if err := srv.Start(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
