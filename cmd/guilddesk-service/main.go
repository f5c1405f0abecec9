package main

import (
	"context"
	"fmt"
	"os"

	"gitlab.com/chatforge/api/guilddesk-service/internal/bootstrap"
	"gitlab.com/chatforge/api/guilddesk-service/pkg/contextkeys"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = context.WithValue(ctx, contextkeys.RequestIDKey, "app-main")

	app, cleanup, err := bootstrap.InitializeApp(ctx)
	if err != nil {
		// The structured logger is not available if bootstrap itself failed.
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := app.Run(ctx); err != nil {
		fmt.Printf("Application run failed: %v\n", err)
		os.Exit(1)
	}
}
