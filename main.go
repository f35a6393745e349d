package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbolis/airform-sync/app"
	"github.com/mbolis/airform-sync/config"
	"github.com/mbolis/airform-sync/database"
	"github.com/mbolis/airform-sync/httpx"
	"github.com/mbolis/airform-sync/jobs"
	"github.com/mbolis/airform-sync/log"
	"github.com/mbolis/airform-sync/routes"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg.DBUrl)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	if cfg.AdminUser != "" {
		created, err := db.EnsureUser(context.Background(), cfg.AdminUser, cfg.AdminPassword, "admin")
		if err != nil {
			log.Fatal("main.db.admin_user:", err)
		}
		if created {
			log.Info("Created admin user " + cfg.AdminUser)
		}
	}
	if cfg.AirtableKey == "" {
		log.Warn("No Airtable API key: responses will not be synced")
	}

	bearerServer := httpx.NewBearerServer(db, cfg)
	app := app.New(db, bearerServer, cfg)

	scheduler, err := jobs.New(db, cfg)
	if err != nil {
		log.Fatal("main.jobs:", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Error("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.AirtableTimeout + 30*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// in-flight submissions are given time to resolve their sync status
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AirtableTimeout+5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			log.Error("main.server.shutdown:", err)
		}
	}()

	log.Info("Listening on " + cfg.Url())
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-done
	}
	return err
}
