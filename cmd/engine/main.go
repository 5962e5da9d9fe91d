// Command engine runs the HTTP/WebSocket service that exposes the
// enumeration engine over a REST API instead of the one-shot CLI.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rawblock/jm-disentangle/internal/api"
	"github.com/rawblock/jm-disentangle/internal/engine"
	"github.com/rawblock/jm-disentangle/internal/explorer"
	"github.com/rawblock/jm-disentangle/internal/store"
)

func main() {
	log.Println("Starting coinjoin-disentangle engine service...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		var err error
		st, err = store.Connect(ctx, dbURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, continuing without persistence. Error: %v", err)
			st = nil
		} else {
			defer st.Close()
			if err := st.InitSchema(ctx); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set — running in memory-only mode")
	}

	fetcher := explorer.NewClient(explorer.Config{BaseURL: getEnvOrDefault("EXPLORER_BASE_URL", "")})
	eng := engine.New(fetcher, st)

	wsHub := api.NewHub()
	go wsHub.Run()

	r := api.SetupRouter(eng, wsHub)

	port := getEnvOrDefault("PORT", "5339")
	log.Printf("Engine running on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
