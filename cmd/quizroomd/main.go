// cmd/quizroomd/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/jason-s-yu/quizroom/internal/lobby"
	"github.com/jason-s-yu/quizroom/internal/middleware"
	"github.com/jason-s-yu/quizroom/internal/store"
	"github.com/jason-s-yu/quizroom/internal/ws"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	projectID := os.Getenv("FIREBASE_PROJECT_ID")
	if projectID == "" {
		log.Fatal("FIREBASE_PROJECT_ID must be set")
	}

	gateway, err := store.NewFirestoreGateway(context.Background(), projectID, logger)
	if err != nil {
		log.Fatalf("failed to connect to document store: %v", err)
	}
	defer gateway.Close()

	registry := lobby.NewRegistry(logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(ws.Handler(registry, gateway, logger)))

	host := os.Getenv("HOST")
	if host == "" {
		host = "0.0.0.0"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8765"
	}

	addr := host + ":" + port
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
