package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"focusvault-backend/internal/config"
	"focusvault-backend/internal/database"
	"focusvault-backend/internal/handlers"
	"focusvault-backend/internal/middleware"
	"focusvault-backend/internal/models"
	"focusvault-backend/internal/repository"
	"focusvault-backend/internal/router"
	"focusvault-backend/internal/services"
	"focusvault-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting Focus Vault Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	sessionStateRepo := repository.NewSessionStateRepo(pool)
	sessionRecordRepo := repository.NewSessionRecordRepo(pool)
	chatMessageRepo := repository.NewChatMessageRepo(pool)
	userStatsRepo := repository.NewUserStatsRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	notifier := services.NewEmailNotifier(userRepo, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	coordinator := services.NewSessionCoordinator(sessionStateRepo, userStatsRepo, redisClients.Publish, notifier)

	coalescer := services.NewSyncCoalescer(
		time.Duration(cfg.SyncCoalesceMS)*time.Millisecond,
		func(userID, sessionID uuid.UUID, elapsedTime int) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err := coordinator.Update(ctx, userID, sessionID, models.UpdateSessionRequest{ElapsedTime: &elapsedTime})
			if err != nil {
				// The session may have ended between the beacon and the flush.
				log.Printf("beacon sync for session %s skipped: %v", sessionID, err)
			}
		},
	)
	log.Println("✓ Session coordinator ready")

	// ──── Step 5: Start WebSocket Hub ────
	roomRegistry := websocket.NewRoomRegistry()
	wsHub := websocket.NewHub(roomRegistry, chatMessageRepo, userRepo, jwtAuth, redisClients.PubSub)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Handlers ────
	sessionHandler := handlers.NewSessionHandler(coordinator, coalescer, jwtAuth)
	chatHandler := handlers.NewChatHandler(chatMessageRepo)
	statsHandler := handlers.NewStatsHandler(userStatsRepo, sessionRecordRepo)

	// ──── Step 6: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		sessionHandler,
		chatHandler,
		statsHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		wsHub.Close()
		coalescer.Flush()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Focus Vault Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
