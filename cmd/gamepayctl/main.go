// Command gamepayctl administers bank integrations and payment requests
// directly against the gamepay database.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

var flagDBPath = &cli.StringFlag{
	Name:    "db",
	Usage:   "Path to the gamepay SQLite database",
	EnvVars: []string{"GAMEPAY_DB_PATH"},
	Value:   "gamepay.db",
}

var flagLogJSON = &cli.BoolFlag{
	Name:  "log-json",
	Usage: "log in JSON format",
}

var flagLogDebug = &cli.BoolFlag{
	Name:  "log-debug",
	Usage: "log debug messages",
}

var flagPrincipal = &cli.Int64Flag{
	Name:     "principal",
	Usage:    "User id of the collecting principal",
	Required: true,
}

var flagPassword = &cli.StringFlag{
	Name:     "password",
	Usage:    "Vault password of the principal",
	EnvVars:  []string{"GAMEPAY_VAULT_PASSWORD"},
	Required: true,
}

func main() {
	app := &cli.App{
		Name:  "gamepayctl",
		Usage: "administer gamepay bank integrations and payment requests",
		Flags: []cli.Flag{flagDBPath, flagLogJSON, flagLogDebug},
		Before: func(cCtx *cli.Context) error {
			slog.SetDefault(setupLogger(cCtx))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "enable-bank",
				Usage: "store and verify a bank API key",
				Flags: []cli.Flag{
					flagPrincipal,
					flagPassword,
					&cli.StringFlag{Name: "api-key", Usage: "Bank API key", EnvVars: []string{"GAMEPAY_BANK_API_KEY"}, Required: true},
				},
				Action: withServices(func(cCtx *cli.Context, s *services) error {
					principalID := cCtx.Int64(flagPrincipal.Name)
					if err := s.bank.Enable(cCtx.Context, principalID, cCtx.String("api-key"), cCtx.String(flagPassword.Name)); err != nil {
						return err
					}
					fmt.Printf("bank enabled for principal %d\n", principalID)
					return nil
				}),
			},
			{
				Name:  "disable-bank",
				Usage: "delete every stored bank secret and the account binding",
				Flags: []cli.Flag{flagPrincipal},
				Action: withServices(func(cCtx *cli.Context, s *services) error {
					principalID := cCtx.Int64(flagPrincipal.Name)
					if err := s.bank.Disable(cCtx.Context, principalID); err != nil {
						return err
					}
					fmt.Printf("bank disabled for principal %d\n", principalID)
					return nil
				}),
			},
			{
				Name:  "accounts",
				Usage: "list the principal's monetary accounts",
				Flags: []cli.Flag{flagPrincipal, flagPassword},
				Action: withServices(func(cCtx *cli.Context, s *services) error {
					accounts, err := s.bank.ListAccounts(cCtx.Context, cCtx.Int64(flagPrincipal.Name), cCtx.String(flagPassword.Name))
					if err != nil {
						return err
					}
					printAccounts(accounts)
					return nil
				}),
			},
			{
				Name:  "bind-account",
				Usage: "select the monetary account payment requests are issued from",
				Flags: []cli.Flag{
					flagPrincipal,
					flagPassword,
					&cli.Int64Flag{Name: "account", Usage: "Monetary account id", Required: true},
				},
				Action: withServices(func(cCtx *cli.Context, s *services) error {
					binding, err := s.bank.BindAccount(cCtx.Context, cCtx.Int64(flagPrincipal.Name), cCtx.Int64("account"), cCtx.String(flagPassword.Name))
					if err != nil {
						return err
					}
					fmt.Printf("principal %d bound to account %d (bank user %d)\n", binding.PrincipalID, binding.MonetaryAccountID, binding.UserID)
					return nil
				}),
			},
			{
				Name:  "install-webhook",
				Usage: "point the bank's payment request notifications at a URL",
				Flags: []cli.Flag{
					flagPrincipal,
					flagPassword,
					&cli.StringFlag{Name: "url", Usage: "Public URL of POST /webhooks/bank", Required: true},
				},
				Action: withServices(func(cCtx *cli.Context, s *services) error {
					if err := s.bank.InstallWebhook(cCtx.Context, cCtx.Int64(flagPrincipal.Name), cCtx.String("url"), cCtx.String(flagPassword.Name)); err != nil {
						return err
					}
					fmt.Println("webhook installed")
					return nil
				}),
			},
			{
				Name:  "request-payments",
				Usage: "issue payment requests for an event's unpaid participants",
				Flags: []cli.Flag{
					flagPrincipal,
					flagPassword,
					&cli.Int64Flag{Name: "event", Usage: "Event id", Required: true},
					&cli.StringFlag{Name: "kind", Usage: "Pricing kind: flat or split", Value: string(model.PricingSplit)},
					&cli.StringFlag{Name: "amount", Usage: "Amount in EUR, per participant (flat) or in total (split)", Required: true},
				},
				Action: withServices(func(cCtx *cli.Context, s *services) error {
					cents, err := model.ParseAmount(cCtx.String("amount"))
					if err != nil {
						return err
					}
					policy := model.PricingPolicy{Kind: model.PricingKind(cCtx.String("kind")), AmountCents: cents}

					result, err := s.payments.RequestPayments(cCtx.Context, cCtx.Int64("event"), cCtx.Int64(flagPrincipal.Name), cCtx.String(flagPassword.Name), policy)
					if err != nil {
						return err
					}
					fmt.Printf("event %d: %d requested, %d failed, %d removed from waitlist\n",
						result.EventID, result.Succeeded, result.Failed, result.WaitlistCleared)
					for _, e := range result.Errors {
						fmt.Printf("  %s\n", e)
					}
					if result.Failed > 0 {
						return cli.Exit("some payment requests failed; rerun to retry", 2)
					}
					return nil
				}),
			},
			{
				Name:  "reconcile",
				Usage: "check every unpaid payment request against the bank",
				Flags: []cli.Flag{flagPrincipal, flagPassword},
				Action: withServices(func(cCtx *cli.Context, s *services) error {
					result, err := s.reconcile.Sweep(cCtx.Context, cCtx.Int64(flagPrincipal.Name), cCtx.String(flagPassword.Name))
					if err != nil {
						return err
					}
					fmt.Printf("checked %d, paid %d, errors %d\n", result.Checked, result.Paid, result.Errors)
					return nil
				}),
			},
			{
				Name:  "mark-paid",
				Usage: "set a registration's paid flag by hand",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "registration", Usage: "Registration id", Required: true},
					&cli.BoolFlag{Name: "paid", Usage: "Paid flag to set; --paid=false un-pays", Value: true},
				},
				Action: withServices(func(cCtx *cli.Context, s *services) error {
					event, err := s.reconcile.SetRegistrationPaid(cCtx.Context, cCtx.Int64("registration"), cCtx.Bool("paid"))
					if err != nil {
						return err
					}
					fmt.Printf("event %d (%s) settled: %t\n", event.ID, event.Title, event.Settled)
					return nil
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// setupLogger builds the process logger. Every line carries a run id so the
// output of one invocation can be picked out of shared logs.
func setupLogger(cCtx *cli.Context) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cCtx.Bool(flagLogDebug.Name) {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cCtx.Bool(flagLogJSON.Name) {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler).With("run_id", uuid.Must(uuid.NewRandom()).String())
}

func printAccounts(accounts []model.MonetaryAccount) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDESCRIPTION\tIBAN\tCURRENCY\tSTATUS")
	for _, a := range accounts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", a.ID, a.Description, a.IBAN, a.Currency, a.Status)
	}
	_ = w.Flush()
}
