package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/ralfizdigital/retailease-license/internal/config"
	"github.com/ralfizdigital/retailease-license/internal/handlers"
	appMiddleware "github.com/ralfizdigital/retailease-license/internal/middleware"
	"github.com/ralfizdigital/retailease-license/internal/repository"
	"github.com/ralfizdigital/retailease-license/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize Redis
	redis, err := repository.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	// Initialize services
	keys := services.NewKeyStore(db)
	if _, err := keys.ActiveKeyPair(ctx); err != nil {
		log.Printf("no active signing key pair found, generating one: %v", err)
		if _, genErr := keys.GenerateKeyPair(ctx, "bootstrap", cfg.LicenseKeyPairBits, true); genErr != nil {
			log.Fatalf("Failed to bootstrap signing key pair: %v", genErr)
		}
	}

	licenses := services.NewLicenseService(db, keys)
	activations := services.NewActivationManager(db, keys, licenses, cfg.LicenseGracePeriodDays)
	tokens := services.NewTokenAuthenticator(db, licenses, activations)
	tenants := services.NewTenantStore(db)
	backups := services.NewBackupIngestor(db, cfg.BackupStorageDir, cfg.MaxBackupSizeBytes)
	syncLog := services.NewSyncSessionLog(db, redis)
	appConfig := services.NewAppConfigStore(db)

	releases, err := services.NewReleaseDistributor(ctx, services.ReleaseDistributorConfig{
		Region:    cfg.DownloadsRegion,
		Bucket:    cfg.DownloadsBucket,
		KeyPrefix: "releases/",
	})
	if err != nil {
		log.Fatalf("Failed to initialize release distributor: %v", err)
	}

	// Initialize handlers
	licenseHandler := handlers.NewLicenseHandler(keys, licenses, activations, appConfig, cfg.LicenseAdminKeyHash, cfg.LicenseGracePeriodDays)
	authHandler := handlers.NewAuthHandler(tokens)
	businessHandler := handlers.NewBusinessHandler(tenants)
	backupHandler := handlers.NewBackupHandler(backups, tenants)
	syncHandler := handlers.NewSyncHandler(syncLog, tenants)
	downloadHandler := handlers.NewDownloadHandler(releases, appConfig)
	healthHandler := handlers.NewHealthHandler(db, redis)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Checksum", "X-File-Size"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Rate limiting
	r.Use(httprate.LimitByIP(100, time.Minute))

	// Health check (public)
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Get("/health/detailed", healthHandler.Detailed)

	tokenRequired := appMiddleware.TokenRequired(tokens)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public: license lifecycle, key material, app config, downloads
		r.Route("/license", func(r chi.Router) {
			r.Post("/validate", licenseHandler.Validate)
			r.Post("/check", licenseHandler.Check)
			r.Post("/refresh", licenseHandler.Refresh)
			r.Post("/deactivate", licenseHandler.Deactivate)
			r.Post("/renew", licenseHandler.Renew)
			r.Get("/by-email", licenseHandler.ByEmail)
		})
		r.Get("/public-key", licenseHandler.PublicKey)
		r.Get("/config", licenseHandler.GetConfig)
		r.Post("/admin/config", licenseHandler.UpdateConfig)

		r.Get("/downloads", downloadHandler.List)
		r.Get("/downloads/{product}/{version}/{platform}", downloadHandler.GetURL)

		// Device authentication
		r.Post("/authenticate", authHandler.Authenticate)

		// Token-gated device traffic
		r.Group(func(r chi.Router) {
			r.Use(tokenRequired)

			r.Post("/logout", authHandler.Logout)
			r.Get("/status", licenseHandler.Status)

			r.Route("/business", func(r chi.Router) {
				r.Get("/", businessHandler.Get)
				r.Post("/register", businessHandler.Register)
			})
			r.Route("/counters", func(r chi.Router) {
				r.Get("/", businessHandler.ListCounters)
				r.Post("/{id}", businessHandler.UpdateCounter)
				r.Delete("/{id}", businessHandler.DeactivateCounter)
			})

			r.Route("/backups", func(r chi.Router) {
				r.Get("/", backupHandler.List)
				r.Post("/upload", backupHandler.Upload)
				r.Get("/{id}", backupHandler.Download)
				r.Post("/{id}/delete", backupHandler.Delete)
				r.Post("/cleanup", backupHandler.Cleanup)
			})

			r.Route("/sync", func(r chi.Router) {
				r.Post("/start", syncHandler.Start)
				r.Post("/{id}/complete", syncHandler.Complete)
				r.Get("/history", syncHandler.History)
			})
		})
	})

	// Server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
