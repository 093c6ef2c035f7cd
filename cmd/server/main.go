package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rootwire/account-service/internal/audit"
	"github.com/rootwire/account-service/internal/config"
	"github.com/rootwire/account-service/internal/events"
	"github.com/rootwire/account-service/internal/httpserver"
	"github.com/rootwire/account-service/internal/middleware"
	"github.com/rootwire/account-service/internal/notify"
	"github.com/rootwire/account-service/internal/repo"
	"github.com/rootwire/account-service/internal/service"
	"github.com/rootwire/account-service/internal/storage"
	"github.com/rootwire/account-service/pkg/hash"
	"github.com/rootwire/account-service/pkg/logging"
	loggingmw "github.com/rootwire/account-service/pkg/middleware/logging"
	"github.com/rootwire/account-service/pkg/otp"
	"github.com/rootwire/account-service/pkg/tokens"
)

const tokenGCInterval = time.Hour

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := config.InitDB(initCtx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	store := repo.New(db)
	issuer := &tokens.Issuer{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}
	hasher := hash.New(cfg.BcryptCost)
	otpGen := otp.New(cfg.OTPLength)

	dispatcher := notify.NewDispatcher(&notify.LogMailer{Log: logger}, cfg.MailQueueSize, logger)
	defer dispatcher.Close()

	var publisher service.EventPublisher
	if cfg.KafkaAddress != "" {
		p := events.NewProducer(cfg.KafkaAddress, cfg.EventTopic)
		defer p.Close()
		publisher = p
	}

	var recorder service.AuditRecorder
	if cfg.ESURL != "" {
		r, err := audit.NewRecorder(cfg.ESURL, cfg.ESUser, cfg.ESPassword, cfg.AuditIndex, logger)
		if err != nil {
			log.Fatalf("audit init error: %v", err)
		}
		recorder = r
	}

	files, err := storage.NewDiskStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}

	authSvc := &service.AuthService{
		Store:         store,
		Hasher:        hasher,
		Issuer:        issuer,
		OTP:           otpGen,
		Mail:          dispatcher,
		Events:        publisher,
		Audit:         recorder,
		OTPTTL:        cfg.OTPTTL,
		ResetTokenTTL: cfg.ResetTokenTTL,
	}
	userSvc := &service.UserService{
		Store:  store,
		Hasher: hasher,
		OTP:    otpGen,
		Mail:   dispatcher,
		Events: publisher,
		Audit:  recorder,
		Files:  files,
		OTPTTL: cfg.OTPTTL,
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.HTTPErrorHandler = httpserver.ErrorHandler(logger)
	e.Use(loggingmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		Auth:   &httpserver.AuthHTTP{Svc: authSvc, Timeout: cfg.RequestTimeout},
		User:   &httpserver.UserHTTP{Svc: userSvc, Files: files, Timeout: cfg.RequestTimeout},
		AuthMW: middleware.NewBearerAuth(issuer),
	})

	gcCtx, gcCancel := context.WithCancel(context.Background())
	defer gcCancel()
	go tokenGC(gcCtx, store, logger)

	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}
}

func tokenGC(ctx context.Context, store repo.CredentialStore, logger *slog.Logger) {
	ticker := time.NewTicker(tokenGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
			n, err := store.DeleteExpiredTokens(sweepCtx)
			cancel()
			if err != nil {
				logger.Error("token_gc_failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("token_gc", "deleted", n)
			}
		}
	}
}
