package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/polycontrol/api/internal/config"
	"github.com/polycontrol/api/internal/database"
	"github.com/polycontrol/api/internal/notify"
	"github.com/polycontrol/api/internal/router"
	"github.com/polycontrol/api/internal/ws"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	queries := database.New(pool)

	hub := ws.NewHub()
	go hub.Run()

	var publisher notify.Publisher = notify.Nop{}
	if cfg.AMQPURL != "" {
		p, err := notify.NewAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("Unable to connect to message broker: %v", err)
		}
		defer p.Close()
		publisher = p
		log.Println("Connected to message broker")
	} else {
		log.Println("AMQP_URL not set, client notifications will only be recorded")
	}

	r := router.New(cfg, queries, pool, hub, publisher)

	log.Printf("Starting server on :%s", cfg.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		log.Fatal(err)
	}
}
