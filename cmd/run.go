package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-co-op/gocron"
	"github.com/linkdrop/linkdrop/internal/auth"
	"github.com/linkdrop/linkdrop/internal/cache"
	"github.com/linkdrop/linkdrop/internal/chizap"
	"github.com/linkdrop/linkdrop/internal/config"
	"github.com/linkdrop/linkdrop/internal/database"
	"github.com/linkdrop/linkdrop/internal/logging"
	"github.com/linkdrop/linkdrop/internal/middleware"
	"github.com/linkdrop/linkdrop/pkg/cron"
	"github.com/linkdrop/linkdrop/pkg/hardlink"
	"github.com/linkdrop/linkdrop/pkg/ratelimit"
	"github.com/linkdrop/linkdrop/pkg/resolver"
	"github.com/linkdrop/linkdrop/pkg/services"
	"github.com/linkdrop/linkdrop/pkg/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

func NewRun() *cobra.Command {
	var cfg config.ServerCmdConfig
	loader := config.NewConfigLoader()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the linkdrop server",
		Run: func(cmd *cobra.Command, args []string) {
			runApplication(cmd.Context(), &cfg)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loader.InitializeConfig(cmd); err != nil {
				return err
			}
			return loader.Load(&cfg)
		},
	}
	config.AddCommonFlags(cmd.Flags(), &cfg)
	cmd.Flags().IntVar(&cfg.Server.Port, "port", 8080, "Server port")
	cmd.Flags().StringVar(&cfg.Server.BaseURL, "base-url", "", "External base URL used in download links")
	return cmd
}

func findAvailablePort(startPort int) (int, error) {
	for port := startPort; port < startPort+100; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		listener.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no available ports found between %d and %d", startPort, startPort+100)
}

func runApplication(ctx context.Context, conf *config.ServerCmdConfig) {
	lvl, err := zapcore.ParseLevel(conf.Log.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	logging.SetConfig(&logging.Config{
		Level:    lvl,
		FilePath: conf.Log.File,
	})

	lg := logging.DefaultLogger().Sugar()
	defer lg.Sync()

	if conf.Storage.Root == "" {
		lg.Fatal("storage root must be configured")
	}
	if conf.Link.TempDir == "" {
		conf.Link.TempDir = filepath.Join(conf.Storage.Root, ".linkdrop-tmp")
	}
	if err := os.MkdirAll(conf.Link.TempDir, 0o755); err != nil {
		lg.Fatalw("failed to create temp directory", "err", err)
	}

	port, err := findAvailablePort(conf.Server.Port)
	if err != nil {
		lg.Fatalw("failed to find available port", "err", err)
	}
	if port != conf.Server.Port {
		lg.Infof("Port %d is occupied, using port %d instead", conf.Server.Port, port)
		conf.Server.Port = port
	}

	db, err := database.NewDatabase(&conf.DB, lg)
	if err != nil {
		lg.Fatalw("failed to open database", "err", err)
	}
	if err := store.Migrate(db); err != nil {
		lg.Fatalw("failed to migrate database", "err", err)
	}

	manager := hardlink.NewManager()
	if conf.Link.VerifyOnStart {
		if err := manager.VerifySupport(conf.Link.TempDir); err != nil {
			lg.Fatalw("hard links are not usable in the temp directory", "err", err)
		}
	}

	fileResolver, err := resolver.NewLocal(conf.Storage.Root)
	if err != nil {
		lg.Fatalw("failed to init file resolver", "err", err)
	}

	cacher := cache.NewCache(ctx, &conf.Cache)
	limiter := ratelimit.New(&conf.RateLimit)
	linkStore := store.NewGormStore(db)

	apiSrv := services.NewApiService(conf, linkStore, fileResolver, manager, limiter, cacher)

	startupCtx := logging.WithLogger(ctx, logging.DefaultLogger())
	if conf.Link.CleanOnStart {
		if cleaned, err := apiSrv.CleanupExpired(startupCtx); err != nil {
			lg.Warnw("startup cleanup failed", "err", err)
		} else if cleaned > 0 {
			lg.Infow("cleaned expired links on startup", "count", cleaned)
		}
		if err := apiSrv.SweepOrphans(startupCtx); err != nil {
			lg.Warnw("orphan sweep failed", "err", err)
		}
	}

	scheduler := gocron.NewScheduler(time.UTC)
	cron.StartCronJobs(ctx, scheduler, apiSrv, limiter, conf)

	srv := setupServer(conf, apiSrv)

	go func() {
		lg.Infof("Server started at http://localhost:%d", conf.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Errorw("failed to start server", "err", err)
		}
	}()

	<-ctx.Done()

	lg.Info("Shutting down server...")
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.Server.GracefulShutdown)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Errorw("server shutdown failed", "err", err)
	}

	lg.Info("Server stopped")
}

type apiHandlers interface {
	CreateLinkHandler(w http.ResponseWriter, r *http.Request)
	LinkStatusHandler(w http.ResponseWriter, r *http.Request)
	ListLinksHandler(w http.ResponseWriter, r *http.Request)
	DownloadHandler(w http.ResponseWriter, r *http.Request)
}

func setupServer(cfg *config.ServerCmdConfig, api apiHandlers) *http.Server {
	lg := logging.DefaultLogger()

	mux := chi.NewRouter()

	mux.Use(chimiddleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Range"},
		ExposedHeaders: []string{"Content-Range", "Accept-Ranges", "Content-Disposition"},
		MaxAge:         86400,
	}))
	mux.Use(chimiddleware.RealIP)
	mux.Use(middleware.InjectLogger(lg))
	mux.Use(chizap.ChizapWithConfig(lg, &chizap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
	}))
	mux.Use(auth.Middleware(cfg.JWT.Secret))

	mux.Route("/api/links", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Require)
			r.Post("/", api.CreateLinkHandler)
			r.Get("/", api.ListLinksHandler)
		})
		r.Get("/{token}", api.LinkStatusHandler)
	})
	mux.Get("/api/version", versionHandler)
	mux.Get("/downloads/{token}", api.DownloadHandler)
	mux.Head("/downloads/{token}", api.DownloadHandler)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
