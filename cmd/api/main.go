package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stylist-backend/cmd"
	"stylist-backend/internal/api"
	"stylist-backend/internal/capture"
	"stylist-backend/internal/conversation"
	"stylist-backend/internal/database"
	"stylist-backend/internal/engine"
	"stylist-backend/internal/notify"
	"stylist-backend/internal/video"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"stylist.db"`
	APIPort        string `env:"API_PORT" envDefault:"8002"`
	AdvisorBaseURL string `env:"ADVISOR_BASE_URL,notEmpty,required"`
	AdvisorAPIKey  string `env:"ADVISOR_API_KEY" envDefault:""`
	AdvisorModel   string `env:"ADVISOR_MODEL" envDefault:"style-advisor-2"`
	VideoBaseURL   string `env:"VIDEO_BASE_URL,notEmpty,required"`
	VideoAPIKey    string `env:"VIDEO_API_KEY" envDefault:""`
	// FramePath points at a local snapshot file for kiosk deployments where
	// the camera lives on the same host as the server; empty disables
	// server-side capture and images only arrive from clients.
	FramePath string `env:"FRAME_PATH" envDefault:""`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var capturer *capture.Capturer
	if cfg.FramePath != "" {
		capturer = capture.NewCapturer(capture.FileSource{Path: cfg.FramePath})
	}

	notifier := notify.LogNotifier{}

	store := conversation.NewStore(db)
	advisorClient := engine.NewRestyAdvisorClient(cfg.AdvisorBaseURL, cfg.AdvisorAPIKey)
	chatEngine := engine.NewEngine(store, advisorClient, capturer, notifier, cfg.AdvisorModel)

	videoClient := video.NewRestyClient(cfg.VideoBaseURL, cfg.VideoAPIKey)
	videoManager := video.NewManager(db, videoClient, notifier)

	// --- Chi Router Setup ---
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	advisorHandler := api.NewAdvisorService(store, chatEngine)
	videoHandler := api.NewVideoService(videoManager)

	r.Get("/health", api.RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/api/v1", func(r chi.Router) {
		advisorHandler.AddRoutes(r)
		videoHandler.AddRoutes(r)
	})

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		// Stale avatar conversations count against the remote cap, so tear
		// them down before the process exits.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		videoManager.EndAllActive(shutdownCtx)

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
