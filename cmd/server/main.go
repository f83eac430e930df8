package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/safarline/booking/internal/booking"
	"github.com/safarline/booking/internal/config"
	"github.com/safarline/booking/internal/database"
	"github.com/safarline/booking/internal/handler"
	"github.com/safarline/booking/internal/hold"
	"github.com/safarline/booking/internal/payment"
	"github.com/safarline/booking/internal/queue"
	"github.com/safarline/booking/internal/repository"
	"github.com/safarline/booking/internal/router"
	queue_publisher "github.com/safarline/booking/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	// Hold store: Redis when reachable, otherwise the in-process
	// fallback (fine for single-instance deployments).
	var holds booking.HoldStore
	if rdb := config.NewRedisClient(); rdb != nil {
		holds = hold.NewRedisStore(rdb)
		log.Printf("hold store: redis")
	} else {
		holds = hold.NewMemoryStore()
		log.Printf("hold store: in-memory (redis unavailable)")
	}

	trips := repository.NewTripRepo(db)
	bookings := repository.NewBookingRepo(db)

	coord := booking.New(trips, bookings, holds, payment.NewTokenVerifier(),
		booking.WithHoldTTL(cfg.HoldTTL),
		booking.WithPendingGrace(cfg.PendingGrace),
		booking.WithCancelCutoff(cfg.CancelCutoff),
		booking.WithEvents(queue_publisher.New()),
	)

	// Periodic sweep: expire unpaid pending bookings and GC holds.
	// Expiry is not load-bearing for correctness (reads exclude
	// expired holds), so a lost tick is harmless.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			expired, gone, err := coord.SweepExpired(ctx)
			cancel()
			if err != nil {
				log.Printf("sweep: %v", err)
				continue
			}
			if expired > 0 || gone > 0 {
				log.Printf("sweep: expired %d bookings, removed %d holds", expired, gone)
			}
		}
	}()

	// Background consumer that mirrors confirmations into logs/booking.log.
	go func() {
		if err := queue.StartBookingConsumer(); err != nil {
			log.Printf("booking consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	h := handler.NewBookingHandler(coord, bookings)
	router.RegisterRoutes(e, h)
	router.RegisterBooking(e, h, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
