package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/pointops/internal/api"
	"github.com/punchamoorthee/pointops/internal/config"
	"github.com/punchamoorthee/pointops/internal/pointkey"
	"github.com/punchamoorthee/pointops/internal/service"
	"github.com/punchamoorthee/pointops/internal/store"
)

const idempotencySweepInterval = time.Hour

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	var st store.Store
	if cfg.DBSource != "" {
		pg, err := store.NewPostgres(context.Background(), cfg.DBSource)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		defer pg.Close()
		st = pg
	} else {
		log.Println("warn: DB_SOURCE not set, running with the in-memory store")
		st = store.NewMemory()
	}

	// Initialize Layers
	configProvider := service.NewConfigProvider(st)
	pointService := service.NewPointService(st, configProvider, pointkey.NewTimeSequence())
	handler := api.NewHandler(pointService)

	go sweepIdempotencyRecords(pointService)

	// Router
	r := mux.NewRouter()
	r.Use(api.RequestID, api.Logging)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler)

	points := r.PathPrefix("/api/v1/points").Subrouter()
	points.HandleFunc("/earn", handler.EarnHandler).Methods("POST")
	points.HandleFunc("/cancel-earn", handler.CancelEarnHandler).Methods("POST")
	points.HandleFunc("/use", handler.UseHandler).Methods("POST")
	points.HandleFunc("/cancel-use", handler.CancelUseHandler).Methods("POST")
	points.HandleFunc("/balance/{userId}", handler.BalanceHandler).Methods("GET")
	points.HandleFunc("/history/{userId}", handler.HistoryHandler).Methods("GET")

	log.Printf("Server starting on :%s (%s)", cfg.Port, cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}

// sweepIdempotencyRecords periodically reclaims idempotency records past
// their 24h TTL.
func sweepIdempotencyRecords(svc *service.PointService) {
	ticker := time.NewTicker(idempotencySweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		deleted, err := svc.CleanupExpiredIdempotencyRecords(context.Background())
		if err != nil {
			log.Printf("idempotency sweep failed: %v", err)
			continue
		}
		if deleted > 0 {
			log.Printf("idempotency sweep removed %d expired records", deleted)
		}
	}
}
