package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/floor/internal/config"
	"github.com/kiwari-pos/floor/internal/database"
	"github.com/kiwari-pos/floor/internal/handler"
	mw "github.com/kiwari-pos/floor/internal/middleware"
	"github.com/kiwari-pos/floor/internal/service"
	"github.com/kiwari-pos/floor/internal/ws"
)

// New creates a Chi router with all floor routes wired up. opts configure
// both lifecycle services (cache, event publishers, clock).
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, logger *slog.Logger, opts ...service.Option) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret, logger)
	authHandler.RegisterRoutes(r)

	// Auth is checked inside via the token query param.
	r.Get("/ws/{channel}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, logger, w, r)
	})

	opts = append([]service.Option{service.WithLogger(logger)}, opts...)

	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore, service.NewCatalog(queries), opts...)

	newPaymentStore := func(db database.DBTX) service.PaymentStore {
		return database.New(db)
	}
	paymentService := service.NewPaymentService(pool, newPaymentStore, opts...)

	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		handler.NewOrderHandler(orderService, logger).RegisterRoutes(r)
		handler.NewPaymentHandler(paymentService, logger).RegisterRoutes(r)
	})

	logger.Info("router initialized")
	return r
}
