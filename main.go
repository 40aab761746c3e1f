package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"quillpost/blog"
	"quillpost/cache"
	"quillpost/config"
	"quillpost/database"
	"quillpost/events"
	"quillpost/handlers"
	"quillpost/middleware"
	"quillpost/rating"
	"quillpost/storage"
)

func main() {
	root := &cobra.Command{
		Use:           "quillpost",
		Short:         "Blog server with search, tags and ratings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema and exit",
			RunE:  runMigrate,
		},
	)

	if err := root.Execute(); err != nil {
		slog.Error("quillpost failed", "error", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	_, _, err := setup()
	return err
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}
	log := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ratingCache rating.Cache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, rating cache disabled", "error", err)
		} else {
			defer rdb.Close()
			ratingCache = cache.NewRatings(rdb, cfg.Redis.TTL)
		}
	}

	var images blog.ImageStore
	imageURL := func(string) string { return "" }
	store, err := storage.NewMinio(ctx, storage.MinioOptions{
		Endpoint:  cfg.Minio.Endpoint,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		Bucket:    cfg.Minio.Bucket,
		UseSSL:    cfg.Minio.UseSSL,
		PublicURL: cfg.Minio.PublicURL,
	})
	if err != nil {
		log.Warn("object storage unavailable, uploads disabled", "error", err)
	} else {
		images = store
		imageURL = store.URL
	}

	var publisher events.Publisher = events.Discard{}
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer nc.Close()
		publisher = nc
	}

	svc := blog.NewService(db, rating.New(db, ratingCache, log), images, publisher, log)

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	r.Use(gin.Recovery(), middleware.Logger(log))
	handlers.New(svc, handlers.Options{
		JWTSecret:      []byte(cfg.JWTSecret),
		TokenTTL:       cfg.TokenTTL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         log,
		ImageURL:       imageURL,
		AuthLimiter:    middleware.NewIPLimiter(cfg.AuthRatePerMinute, cfg.AuthRateBurst),
	}).Register(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
