package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/printwatch-io/printwatch/internal/api"
	"github.com/printwatch-io/printwatch/internal/config"
	"github.com/printwatch-io/printwatch/internal/database"
	"github.com/printwatch-io/printwatch/internal/mail/connector"
	"github.com/printwatch-io/printwatch/internal/mail/extract"
	"github.com/printwatch-io/printwatch/internal/poller"
	"github.com/printwatch-io/printwatch/internal/registry"
	"github.com/printwatch-io/printwatch/internal/repository"
	"github.com/printwatch-io/printwatch/internal/version"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	logger.Printf("printwatch %s starting", version.String())

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}

	if os.Getenv("APP_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatalf("failed to apply schema: %v", err)
	}
	logger.Printf("database ready (%s)", db.DriverName())

	devices := registry.New(cfg.Devices)
	if devices.Len() == 0 {
		devices = registry.Default()
	}
	logger.Printf("device registry loaded with %d device(s)", devices.Len())

	fetcher := connector.NewPOP3Fetcher(
		connector.WithPOP3Logger(logger),
		connector.WithPOP3DialTimeout(cfg.Fetch.DialTimeout),
	)
	extractor := extract.New(devices, extract.WithLogger(logger))
	store := repository.NewIngestStore(db, repository.WithIngestStoreLogger(logger))

	p := poller.New(fetcher, extractor, store,
		poller.WithAccount(connector.Account{
			Host:     cfg.Mail.Server,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: []byte(cfg.Mail.Password),
		}),
		poller.WithInterval(cfg.Fetch.Interval),
		poller.WithPollerLogger(logger),
	)
	p.Start(ctx)
	defer p.Stop()

	router := api.NewRouter(p, db, logger)
	srv := &http.Server{
		Addr:    cfg.Server.GetServerAddr(),
		Handler: router,
	}

	go func() {
		logger.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
}
