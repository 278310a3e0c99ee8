package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/basit/packshare-backend/archiver"
	"github.com/basit/packshare-backend/audit"
	"github.com/basit/packshare-backend/cache"
	"github.com/basit/packshare-backend/config"
	"github.com/basit/packshare-backend/gateway"
	"github.com/basit/packshare-backend/handlers"
	"github.com/basit/packshare-backend/initializers"
	"github.com/basit/packshare-backend/jobs"
	"github.com/basit/packshare-backend/middleware"
	"github.com/basit/packshare-backend/repository"
	"github.com/basit/packshare-backend/routes"
	"github.com/basit/packshare-backend/scanner"
	"github.com/basit/packshare-backend/storage"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	auditor := audit.New(logger)

	db, err := initializers.ConnectToDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	store := repository.NewGormStore(db)

	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	tokens := cache.New(cfg.CacheSize, cfg.CacheTTL)

	var clam scanner.Scanner
	if cfg.ClamdAddr != "" {
		clam = scanner.NewClamdScanner(cfg.ClamdAddr)
	} else {
		logger.Warn("CLAMD_ADDR not set; uploads are checked by the signature heuristic only")
	}
	gate := scanner.NewGate(clam, auditor)

	assembler := archiver.New(store, blobs, tokens, gate, auditor,
		cfg.MaxFileSizeBytes, cfg.DefaultExpiry)
	gw := gateway.New(store, blobs, tokens, auditor)

	jobs.NewCleanup(store, blobs, logger).Start(context.Background())

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Archive-Password", "X-Edit-Token", "X-Captcha-Token"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RateLimit())

	var captcha middleware.CaptchaVerifier
	if cfg.CaptchaSecret != "" {
		captcha = middleware.NewHTTPVerifier(cfg.CaptchaSecret, cfg.CaptchaVerifyURL)
	}

	h := handlers.New(assembler, gw, cfg.BaseURL, logger)
	routes.RegisterArchiveRoutes(router, h, captcha)

	logger.Info("listening", "port", cfg.Port)
	log.Fatal(router.Run(":" + cfg.Port))
}

func newBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.BlobBackend {
	case "s3":
		return storage.NewS3Store(context.Background(), cfg.AWSRegion, cfg.S3Bucket)
	case "supabase":
		return storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket), nil
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}
