package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/pixelvault/vault/common/bootstrap"
	"github.com/pixelvault/vault/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fanout only needs Redis; no database or cache
	components, err := bootstrap.Setup(ctx, "fanout",
		bootstrap.WithoutDB(),
		bootstrap.WithoutCache(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup fanout: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	hub := NewHub(components.Logger)
	go hub.Run()

	subscriber := NewRedisSubscriber(components.RedisRaw, hub, components.Logger)
	go func() {
		if err := subscriber.Start(ctx); err != nil {
			components.Logger.Error("redis subscriber failed", "error", err)
			os.Exit(1)
		}
	}()

	srv := NewServer(hub, components.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWebSocket)
	mux.HandleFunc("/stats", srv.HandleStats)
	mux.HandleFunc("/health", server.HealthHandler())

	httpServer := server.New("fanout", components.Config.Service.Port, mux, components.Logger)
	if err := httpServer.Start(); err != nil {
		components.Logger.Error("fanout stopped", "error", err)
		os.Exit(1)
	}
}
