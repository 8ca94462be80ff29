package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the calculations over HTTP",
	RunE:  runServe,
}

var flagAddr string

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default :$PGM_PORT or :8080)")
	rootCmd.AddCommand(serveCmd)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := flagAddr
	if addr == "" {
		addr = ":" + getEnv("PGM_PORT", "8080")
	}

	routeManager := NewRouteManager()
	routeManager.Setup()

	server := &http.Server{
		Handler:      routeManager.Router,
		Addr:         addr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // batches can be long
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Starting pgm server on %s...", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
