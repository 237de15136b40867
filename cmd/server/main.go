package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stellarsave/savings-engine/internal/auth"
	"github.com/stellarsave/savings-engine/internal/challenge"
	"github.com/stellarsave/savings-engine/internal/events"
	"github.com/stellarsave/savings-engine/internal/metrics"
	"github.com/stellarsave/savings-engine/internal/pool"
	"github.com/stellarsave/savings-engine/internal/rewards"
	"github.com/stellarsave/savings-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pgPool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pgPool.Close)
		pg := store.NewPostgresStore(pgPool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Authorization gate ---
	gate := auth.NewHeaderGate(os.Getenv("AUTH_TOKEN"))

	// --- WebSocket hub ---
	hub := events.NewHub()
	go hub.Run()

	// --- Services ---
	poolSvc := pool.NewService(st, gate, hub)
	challengeSvc := challenge.NewService(st, gate, hub)
	rewardsSvc := rewards.NewService(st, gate, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Principal, X-Auth-Token")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"savings-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time event updates.
		r.Get("/ws", hub.HandleWS)

		// Engine setup.
		r.Post("/initialize", poolSvc.Initialize)

		// Pools and positions.
		r.Get("/pools", poolSvc.ListPools)
		r.Post("/pools", poolSvc.CreatePool)
		r.Get("/pools/{poolID}", poolSvc.GetPool)
		r.Post("/pools/{poolID}/deposit", poolSvc.Deposit)
		r.Post("/pools/{poolID}/withdraw", poolSvc.Withdraw)
		r.Post("/pools/{poolID}/emergency-withdraw", poolSvc.EmergencyWithdraw)
		r.Post("/pools/{poolID}/distribute", poolSvc.DistributeYield)
		r.Get("/pools/{poolID}/projected-yield", poolSvc.ProjectedYield)
		r.Get("/positions/{user}", poolSvc.GetPositions)
		r.Get("/tvl", poolSvc.GetTVL)

		// Exchange rates.
		r.Get("/rates/{pair}", poolSvc.GetExchangeRate)
		r.Put("/rates/{pair}", poolSvc.UpdateExchangeRate)

		// Challenges.
		r.Get("/challenges", challengeSvc.ListChallenges)
		r.Post("/challenges", challengeSvc.CreateChallenge)
		r.Get("/challenges/{challengeID}", challengeSvc.GetChallenge)
		r.Post("/challenges/{challengeID}/contribute", challengeSvc.Contribute)
		r.Post("/challenges/{challengeID}/finalize", challengeSvc.Finalize)
		r.Put("/challenges/{challengeID}/active", challengeSvc.SetActive)
		r.Post("/challenges/{challengeID}/milestones", challengeSvc.AddMilestone)
		r.Get("/challenges/{challengeID}/milestones", challengeSvc.GetMilestones)
		r.Get("/challenges/{challengeID}/contributions", challengeSvc.GetContributions)
		r.Get("/challenges/{challengeID}/progress", challengeSvc.GetProgress)
		r.Get("/challenges/{challengeID}/expected", challengeSvc.GetExpectedAmount)
		r.Get("/challenges/{challengeID}/stats", challengeSvc.GetStats)
		r.Get("/challenges/{challengeID}/stats/{user}", challengeSvc.GetParticipantStats)
		r.Get("/challenges/{challengeID}/participants/{user}", challengeSvc.IsParticipant)
		r.Get("/users/{user}/challenges", challengeSvc.GetUserChallenges)

		// Rewards and token bookkeeping.
		r.Get("/rewards/config", rewardsSvc.GetConfig)
		r.Put("/rewards/config", rewardsSvc.UpdateConfig)
		r.Get("/rewards/calculate", rewardsSvc.CalculateReward)
		r.Post("/rewards/mint", rewardsSvc.Mint)
		r.Post("/rewards/transfer", rewardsSvc.Transfer)
		r.Get("/rewards/minters", rewardsSvc.ListMinters)
		r.Post("/rewards/minters", rewardsSvc.AddMinter)
		r.Get("/rewards/minters/{principal}", rewardsSvc.IsMinter)
		r.Delete("/rewards/minters/{principal}", rewardsSvc.RemoveMinter)
		r.Get("/rewards/balance/{user}", rewardsSvc.GetBalance)
		r.Get("/rewards/supply", rewardsSvc.GetSupply)
		r.Get("/rewards/stats/{type}", rewardsSvc.GetStats)
		r.Get("/rewards/history/{user}", rewardsSvc.GetHistory)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("savings-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down savings-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("savings-engine stopped")
}
