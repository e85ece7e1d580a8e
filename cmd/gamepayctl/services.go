package main

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	bunqadapter "github.com/ericfisherdev/gamepay/internal/adapter/driven/bunq"
	notifyadapter "github.com/ericfisherdev/gamepay/internal/adapter/driven/notify"
	sqliteadapter "github.com/ericfisherdev/gamepay/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/gamepay/internal/application"
	"github.com/ericfisherdev/gamepay/internal/config"
)

const userAgent = "gamepayctl/1.0"

// services is the application wiring one command runs against.
type services struct {
	db        *sqliteadapter.DB
	bank      *application.BankService
	payments  *application.PaymentService
	reconcile *application.ReconciliationService
}

// withServices opens the database, wires the services and closes the
// database after the action returns.
func withServices(action func(*cli.Context, *services) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		s, err := openServices(cCtx)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := s.db.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		return action(cCtx, s)
	}
}

func openServices(cCtx *cli.Context) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.DBPath = cCtx.String(flagDBPath.Name)

	db, err := sqliteadapter.NewDB(cCtx.Context, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", cfg.DBPath, err)
	}

	userStore := sqliteadapter.NewUserRepo(db)
	registrationStore := sqliteadapter.NewRegistrationRepo(db)
	paymentStore := sqliteadapter.NewPaymentRepo(db)
	bindingStore := sqliteadapter.NewAccountBindingRepo(db)

	vault, err := application.NewCredentialVault(sqliteadapter.NewCredentialRepo(db), cfg.KDFIterations)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	notifier := notifyadapter.New(
		notifyadapter.NewTelegramClient(cfg.TelegramBotToken),
		notifyadapter.NewSMSGateway(cfg.SMSGatewayURL),
	)
	sessions := application.NewSessionManager(
		vault,
		bindingStore,
		bunqadapter.NewClient(cfg.BankBaseURL, userAgent),
		cfg.DeviceDescription,
	)

	return &services{
		db:   db,
		bank: application.NewBankService(vault, bindingStore, sessions),
		payments: application.NewPaymentService(
			registrationStore, userStore, paymentStore, bindingStore, sessions, notifier, cfg.PhoneSurchargeCents,
		),
		reconcile: application.NewReconciliationService(
			paymentStore, registrationStore, userStore, sessions, notifier,
			application.ReconciliationConfig{RecheckAfter: cfg.RecheckAfter},
		),
	}, nil
}
