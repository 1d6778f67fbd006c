package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mind-engage/classquiz/internal/api/http"
	"github.com/mind-engage/classquiz/internal/attempt"
	auth "github.com/mind-engage/classquiz/internal/auth/middleware"
	"github.com/mind-engage/classquiz/internal/config"
	"github.com/mind-engage/classquiz/internal/db"
	"github.com/mind-engage/classquiz/internal/gradebook"
	"github.com/mind-engage/classquiz/internal/jobs"
	"github.com/mind-engage/classquiz/internal/storage"
	"github.com/mind-engage/classquiz/internal/store"
	syncx "github.com/mind-engage/classquiz/internal/sync"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	st := store.NewSQLStore(dbh, cfg.DBDriver)
	if cfg.SeedDefaultClasses {
		if err := store.SeedDefaults(ctx, st); err != nil {
			log.Fatalf("seed classes: %v", err)
		}
	}

	events := syncx.NewEventRepo(dbh, "")
	reg := attempt.NewRegistry()
	attempts := attempt.NewService(st, reg, attempt.Options{
		ViolationLimit: cfg.ViolationLimit,
		MinInterval:    cfg.ViolationDebounce,
		Events:         events,
	})
	go reg.Run(ctx)

	sched, err := jobs.NewScheduler(cfg.SweepSchedule, jobs.SessionSweep{
		Sweeper: attempts,
		IdleTTL: cfg.SessionIdleTTL,
	})
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	bs, err := storage.NewFSStore(cfg.BlobBasePath, cfg.PublicURL)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	var gb api.GradebookPusher
	if cfg.GradebookLineItemsURL != "" {
		client := gradebook.NewClient(gradebook.ClientConfig{
			TokenURL:     cfg.GradebookTokenURL,
			ClientID:     cfg.GradebookClientID,
			ClientSecret: cfg.GradebookClientSecret,
			Timeout:      cfg.GradebookTimeout,
		})
		gb = gradebook.New(st, client, cfg.GradebookLineItemsURL, nil)
		log.Printf("[gradebook] pushing released scores to %s", cfg.GradebookLineItemsURL)
	}

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Mount(r, api.Deps{
		Store:     st,
		Attempts:  attempts,
		Auth:      authSvc,
		Users:     auth.NewUserStore(dbh),
		Blobs:     bs,
		Events:    events,
		Gradebook: gb,
		RoleDB:    dbh,
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
