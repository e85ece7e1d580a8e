package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	bunqadapter "github.com/ericfisherdev/gamepay/internal/adapter/driven/bunq"
	notifyadapter "github.com/ericfisherdev/gamepay/internal/adapter/driven/notify"
	sqliteadapter "github.com/ericfisherdev/gamepay/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/gamepay/internal/adapter/driving/http"
	"github.com/ericfisherdev/gamepay/internal/application"
	"github.com/ericfisherdev/gamepay/internal/config"
)

const userAgent = "gamepay/1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"bank_base_url", cfg.BankBaseURL,
		"periodic_sweep", cfg.HasPeriodicSweep(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	userStore := sqliteadapter.NewUserRepo(db)
	registrationStore := sqliteadapter.NewRegistrationRepo(db)
	paymentStore := sqliteadapter.NewPaymentRepo(db)
	credentialStore := sqliteadapter.NewCredentialRepo(db)
	bindingStore := sqliteadapter.NewAccountBindingRepo(db)

	bankAPI := bunqadapter.NewClient(cfg.BankBaseURL, userAgent)
	notifier := notifyadapter.New(
		notifyadapter.NewTelegramClient(cfg.TelegramBotToken),
		notifyadapter.NewSMSGateway(cfg.SMSGatewayURL),
	)

	// 6. Create application services.
	vault, err := application.NewCredentialVault(credentialStore, cfg.KDFIterations)
	if err != nil {
		return err
	}
	sessions := application.NewSessionManager(vault, bindingStore, bankAPI, cfg.DeviceDescription)
	bankSvc := application.NewBankService(vault, bindingStore, sessions)
	paymentSvc := application.NewPaymentService(
		registrationStore,
		userStore,
		paymentStore,
		bindingStore,
		sessions,
		notifier,
		cfg.PhoneSurchargeCents,
	)
	reconcileSvc := application.NewReconciliationService(
		paymentStore,
		registrationStore,
		userStore,
		sessions,
		notifier,
		application.ReconciliationConfig{
			SweepPrincipalID: cfg.SweepPrincipalID,
			SweepPassword:    cfg.SweepPassword,
			SweepInterval:    cfg.SweepInterval,
			RecheckAfter:     cfg.RecheckAfter,
			WebhookQueueSize: cfg.WebhookQueueSize,
		},
	)

	// 7. Start the reconciliation loop (webhook worker + sweeps).
	go reconcileSvc.Start(ctx)

	// 8. Create HTTP handler with routes and middleware.
	apiHandler := httphandler.NewHandler(bankSvc, paymentSvc, reconcileSvc, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Payment batches make one bank round trip per payer.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("gamepay started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
