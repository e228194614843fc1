package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/skilllink/skilllink/api"
	"github.com/skilllink/skilllink/internal/access"
	"github.com/skilllink/skilllink/internal/admin"
	"github.com/skilllink/skilllink/internal/booking"
	"github.com/skilllink/skilllink/internal/catalog"
	"github.com/skilllink/skilllink/internal/chat"
	"github.com/skilllink/skilllink/internal/config"
	"github.com/skilllink/skilllink/internal/database"
	"github.com/skilllink/skilllink/internal/identities"
	"github.com/skilllink/skilllink/internal/professional"
	"github.com/skilllink/skilllink/internal/referral"
	"github.com/skilllink/skilllink/internal/review"
	"github.com/skilllink/skilllink/internal/wallet"
	"github.com/skilllink/skilllink/pkg/logger"
	"github.com/skilllink/skilllink/pkg/metrics"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create logger
	zapLogger, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Connect to PostgreSQL and run migrations
	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// OTP storage: Redis when configured, in-memory otherwise (dev only)
	var otpStore identities.OTPStore
	if cfg.Redis.Address != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		otpStore = identities.NewRedisOTPStore(redisClient)
	} else {
		zapLogger.Warn("Redis not configured, falling back to in-memory OTP store")
		otpStore = identities.NewMemoryOTPStore()
	}

	// Create services
	walletSvc, err := wallet.NewService(zapLogger, db, cfg.Credits)
	if err != nil {
		zapLogger.Fatal("Failed to create wallet service", zap.Error(err))
	}
	gate := access.NewGate(zapLogger, walletSvc)
	identitiesSvc, err := identities.NewService(zapLogger, db, walletSvc, otpStore,
		cfg.OTP.TTL, cfg.OTP.MaxAttempts, cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	if err != nil {
		zapLogger.Fatal("Failed to create identities service", zap.Error(err))
	}
	bookingSvc, err := booking.NewService(zapLogger, db, walletSvc, cfg.Credits)
	if err != nil {
		zapLogger.Fatal("Failed to create booking service", zap.Error(err))
	}
	professionalSvc, err := professional.NewService(zapLogger, db, walletSvc, gate, cfg.Credits)
	if err != nil {
		zapLogger.Fatal("Failed to create professional service", zap.Error(err))
	}
	referralSvc, err := referral.NewService(zapLogger, db, walletSvc, cfg.Credits)
	if err != nil {
		zapLogger.Fatal("Failed to create referral service", zap.Error(err))
	}
	bookingSvc.AddCompletionListener(referralSvc)
	reviewSvc, err := review.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create review service", zap.Error(err))
	}
	chatSvc, err := chat.NewService(zapLogger, db, walletSvc, cfg.Credits)
	if err != nil {
		zapLogger.Fatal("Failed to create chat service", zap.Error(err))
	}
	catalogSvc, err := catalog.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create catalog service", zap.Error(err))
	}
	adminSvc, err := admin.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create admin service", zap.Error(err))
	}

	// Schedule DB pool metrics collection every 30s
	tickerDB := time.NewTicker(30 * time.Second)
	defer tickerDB.Stop()
	go func() {
		for range tickerDB.C {
			if sqlDB, err := db.DB(); err == nil {
				stats := sqlDB.Stats()
				metrics.DBOpenConns.WithLabelValues("postgres").Set(float64(stats.OpenConnections))
				metrics.DBIdleConns.WithLabelValues("postgres").Set(float64(stats.Idle))
				metrics.DBInUseConns.WithLabelValues("postgres").Set(float64(stats.InUse))
			}
		}
	}()

	// Create API server
	apiServer := api.NewServer(zapLogger, api.Services{
		Identities:    identitiesSvc,
		Wallets:       walletSvc,
		Bookings:      bookingSvc,
		Professionals: professionalSvc,
		Referrals:     referralSvc,
		Reviews:       reviewSvc,
		Chats:         chatSvc,
		Catalog:       catalogSvc,
		Admin:         adminSvc,
	}, cfg.Server.RateLimit)

	// Start services
	services := []interface {
		Start() error
		Stop() error
	}{
		walletSvc, identitiesSvc, bookingSvc, professionalSvc,
		referralSvc, reviewSvc, chatSvc, catalogSvc, adminSvc,
	}
	for _, svc := range services {
		if err := svc.Start(); err != nil {
			zapLogger.Fatal("Failed to start service", zap.Error(err))
		}
	}

	// Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		if err := apiServer.Start(addr); err != nil {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	// Stop services in reverse order
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(); err != nil {
			zapLogger.Error("Failed to stop service", zap.Error(err))
		}
	}

	zapLogger.Info("Server exited properly")
}
