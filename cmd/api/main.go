package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kyoseo/auth-api/internal/auth"
	"github.com/kyoseo/auth-api/internal/config"
	"github.com/kyoseo/auth-api/internal/events"
	"github.com/kyoseo/auth-api/internal/session"
	"github.com/kyoseo/auth-api/internal/token"
	"github.com/kyoseo/auth-api/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}

	users := user.NewRepository(db)
	if err := users.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	store := session.NewStore(rdb)
	if latency, err := store.Ping(ctx); err != nil {
		log.Fatalf("redis: %v", err)
	} else {
		log.Printf("redis connected (%s)", latency)
	}

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte(cfg.AccessSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshSecret: []byte(cfg.RefreshSecret),
		RefreshTTL:    cfg.RefreshTTL,
	})
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	publisher := events.NewPublisher(
		events.Config{BufferSize: cfg.EventBuffer, DropIfFull: true},
		events.NewRedisSink(rdb),
	)
	defer publisher.Close()

	detector := session.NewDetector(store, publisher)
	guard := auth.NewGuard(codec, store, detector, publisher)
	service := auth.NewService(codec, store, users, cfg.SessionTTL, cfg.LockTTL)
	handler := auth.NewHandler(service, store)

	router := mux.NewRouter()
	handler.Register(router, guard)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(router)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
