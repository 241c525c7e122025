// Command yardwatch runs the occupancy service: it accepts domain actions
// over HTTP, maintains the current-occupancy table and movement history in
// SQLite, and broadcasts live updates to subscribers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/railyard-data/yardwatch/internal/api"
	"github.com/railyard-data/yardwatch/internal/db"
	"github.com/railyard-data/yardwatch/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "yard.db", "Path to the SQLite database")
	rebuild     = flag.Bool("rebuild", false, "Rebuild current occupancy from movement history before serving")
	showVersion = flag.Bool("version", false, "Print build information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Print(version.String())

	database, err := db.New(*dbPath, nil)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if *rebuild {
		if err := database.RebuildOccupancy(); err != nil {
			log.Fatalf("Failed to rebuild occupancy from history: %v", err)
		}
		log.Print("Rebuilt current occupancy from movement history")
	}

	hub := api.NewHub()
	defer hub.Close()

	server := api.NewServer(database, hub)
	mux := server.ServeMux()
	database.AttachAdminRoutes(mux)

	httpServer := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("yardwatch listening on %s", *listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	wg.Wait()
}
