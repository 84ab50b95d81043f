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
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/jkeevk/aimlul-admin/internal/auth"
	"github.com/jkeevk/aimlul-admin/internal/config"
	"github.com/jkeevk/aimlul-admin/internal/database"
	"github.com/jkeevk/aimlul-admin/internal/handlers"
	"github.com/jkeevk/aimlul-admin/internal/hosts"
	"github.com/jkeevk/aimlul-admin/internal/logging"
	"github.com/jkeevk/aimlul-admin/internal/middleware"
	"github.com/jkeevk/aimlul-admin/internal/sshpool"
	"github.com/jkeevk/aimlul-admin/internal/wsmanager"
)

func main() {
	config.Load()
	logging.Init()

	if err := database.Init(); err != nil {
		log.Fatalf("database init: %v", err)
	}
	defer database.Close()

	if err := database.SeedAdmin(config.Cfg.AuthUsername, config.Cfg.AuthPassword); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	if config.Cfg.HostsFile != "" {
		n, err := hosts.ImportFile(config.Cfg.HostsFile)
		if err != nil {
			log.Printf("WARNING: host inventory import: %v", err)
		} else {
			log.Printf("Imported %d host(s) from %s", n, config.Cfg.HostsFile)
		}
	}

	idleTimeout, err := time.ParseDuration(config.Cfg.SSHIdleTimeout)
	if err != nil {
		log.Printf("WARNING: invalid SSH_IDLE_TIMEOUT %q, using default", config.Cfg.SSHIdleTimeout)
		idleTimeout = 0
	}
	pool := sshpool.New(sshpool.Config{
		IdleTimeout: idleTimeout,
		MaxDials:    config.Cfg.SSHMaxDials,
	})
	wsMgr := wsmanager.New(pool)

	sessionStore := auth.NewSessionStore(time.Duration(config.Cfg.SessionMinutes) * time.Minute)
	attempts := auth.NewLoginAttempts(config.Cfg.MaxLoginAttempts,
		time.Duration(config.Cfg.LockoutMinutes)*time.Minute)

	handlers.Pool = pool
	handlers.WSManager = wsMgr
	handlers.SessionStore = sessionStore
	handlers.Attempts = attempts

	c := cron.New()
	c.AddFunc("@every 10m", func() {
		sessionStore.Cleanup()
		attempts.CleanupStale()
	})
	c.AddFunc("@daily", func() {
		if n, err := database.PruneAuditEntries(30 * 24 * time.Hour); err != nil {
			log.Printf("[cron] prune audit entries: %v", err)
		} else if n > 0 {
			log.Printf("[cron] pruned %d audit entr(ies)", n)
		}
	})
	c.Start()
	defer c.Stop()

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", handlers.Health)
	r.Post("/api/login", handlers.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessionStore))
		r.Post("/api/logout", handlers.Logout)
		r.Get("/api/me", handlers.Me)
		r.Get("/api/defaults", handlers.Defaults)
		r.Get("/api/hosts", handlers.ListHosts)
		r.Post("/api/hosts", handlers.CreateHost)
		r.Delete("/api/hosts/{id}", handlers.DeleteHost)
		r.Post("/api/containers/action", handlers.ContainerAction)
		r.Post("/api/containers/logs", handlers.FetchLogs)
		r.Get("/api/server/logs", handlers.ServerLogs)
		r.Get("/ws/logs", handlers.LogsWS)
	})

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("Listening on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	wsMgr.Cleanup()
	pool.CloseAll()
}
