package router

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polycontrol/api/internal/config"
	"github.com/polycontrol/api/internal/database"
	"github.com/polycontrol/api/internal/handler"
	mw "github.com/polycontrol/api/internal/middleware"
	"github.com/polycontrol/api/internal/notify"
	"github.com/polycontrol/api/internal/service"
	"github.com/polycontrol/api/internal/ws"
)

// wsBroadcaster adapts the hub to the service layer's Broadcaster.
type wsBroadcaster struct {
	hub *ws.Hub
}

func (b wsBroadcaster) BroadcastOrderEvent(eventType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	b.hub.Broadcast(ws.Event{Type: eventType, Payload: raw})
}

// notifyPublisher adapts notify.Publisher to the service layer.
type notifyPublisher struct {
	pub notify.Publisher
}

func (p notifyPublisher) PublishNotification(ctx context.Context, orderID, orderNumber, channel, recipient, text string) error {
	return p.pub.Publish(ctx, notify.Message{
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Channel:     channel,
		Recipient:   recipient,
		Text:        text,
	})
}

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, publisher notify.Publisher) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		pricelistHandler := handler.NewPricelistHandler(queries)
		pricelistHandler.RegisterRoutes(r)

		quoteHandler := handler.NewQuoteHandler(queries)
		quoteHandler.RegisterRoutes(r)

		newOrderStore := func(db database.DBTX) service.OrderStore {
			return database.New(db)
		}
		orderService := service.NewOrderService(pool, newOrderStore, wsBroadcaster{hub: hub}, notifyPublisher{pub: publisher})
		orderHandler := handler.NewOrderHandler(orderService, queries)
		orderHandler.RegisterRoutes(r)
	})

	return r
}
