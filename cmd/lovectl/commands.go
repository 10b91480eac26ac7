package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/anonto42/lovesignal/backend/internal/bootstrap"
	"github.com/anonto42/lovesignal/backend/internal/events"
	"github.com/anonto42/lovesignal/backend/internal/identity"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/anonto42/lovesignal/backend/internal/services"
	"github.com/anonto42/lovesignal/backend/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lovectl",
		Short:         "Inspect and drive a lovesignal deployment from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newIndexCmd(), newReportCmd(), newLogsCmd(), newSummaryCmd(), newSendCmd())
	return root
}

func newIndexCmd() *cobra.Command {
	var sent, received int
	var policyName string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Compute the love index for the given counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := services.PolicyByName(policyName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s(%d, %d) = %d\n",
				policy.Name(), sent, received, services.ComputeLoveIndex(policy, sent, received))
			return nil
		},
	}
	cmd.Flags().IntVar(&sent, "sent", 0, "number of signals sent")
	cmd.Flags().IntVar(&received, "received", 0, "number of signals received")
	cmd.Flags().StringVar(&policyName, "policy", services.PolicyBounded, "love index policy (bounded or ratio)")
	return cmd
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <identity-id>",
		Short: "Print the per-category breakdown of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *app) error {
				rows, err := app.ledger.ComputeReportBreakdown(ctx, args[0])
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <identity-id>",
		Short: "Print sent and received counts and the love index of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *app) error {
				s, err := app.ledger.Summary(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent=%d received=%d index=%d policy=%s\n",
					s.SentCount, s.ReceivedCount, s.LoveIndex, s.Policy)
				return nil
			})
		},
	}
}

func newLogsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs <identity-id>",
		Short: "Print the merged signal log of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *app) error {
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				ctx = services.WithProfileCache(ctx, services.NewProfileCache(app.profiles, nil))

				views := make(chan models.LogView, 16)
				sub, err := app.ledger.StreamLogs(ctx, args[0], func(v models.LogView) {
					select {
					case views <- v:
					case <-ctx.Done():
					}
				})
				if err != nil {
					return err
				}
				defer sub.Unsubscribe()

				for {
					select {
					case <-ctx.Done():
						return nil
					case v := <-views:
						printLogView(cmd.OutOrStdout(), v)
						if !follow {
							return nil
						}
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing the log as it changes")
	return cmd
}

func newSendCmd() *cobra.Command {
	var email, password, to, target, signalType string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a signal, signed in with --email/--password or anonymously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *app) error {
				session := identity.NewSession(app.infra.Provider)
				watch := session.OnAuthStateChange(func(c *identity.Credentials) {
					if c == nil {
						app.logger.Debug("signed out")
						return
					}
					app.logger.Debug("signed in", zap.String("identity", c.IdentityID), zap.Bool("anonymous", c.Anonymous))
				})
				defer watch.Unsubscribe()

				if email != "" {
					if _, err := session.SignIn(ctx, email, password); err != nil {
						return err
					}
				}
				creds, err := session.EnsureSignedIn(ctx)
				if err != nil {
					return err
				}

				id, err := app.ledger.SendSignal(ctx, creds.IdentityID, services.RecipientTarget{Kind: target, Value: to}, args[0], signalType)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %s from %s\n", id, creds.IdentityID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "sign in with this email")
	cmd.Flags().StringVar(&password, "password", "", "password for --email")
	cmd.Flags().StringVar(&to, "to", "", "recipient")
	cmd.Flags().StringVar(&target, "target", models.TargetUsername, "how --to is interpreted (username, contact or identity)")
	cmd.Flags().StringVar(&signalType, "type", "", "signal category")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

type app struct {
	infra    *bootstrap.Infra
	profiles repositories.ProfileRepository
	ledger   *services.SignalLedger
	logger   *zap.Logger
}

// withApp opens the configured backends, runs fn and closes them again. SIGINT and SIGTERM
// cancel the context passed to fn.
func withApp(parent context.Context, fn func(context.Context, *app) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	infra, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	var publisher events.Publisher = events.Noop{}
	if infra.Publisher != nil {
		publisher = infra.Publisher
	}
	profiles := repositories.NewStoreProfileRepository(infra.Store)
	contacts := services.NewContactManager(repositories.NewStoreContactRepository(infra.Store), profiles, publisher, logger)
	ledger := services.NewSignalLedger(repositories.NewStoreSignalRepository(infra.Store), profiles, contacts, infra.Ledger, publisher, logger)

	return fn(ctx, &app{infra: infra, profiles: profiles, ledger: ledger, logger: logger})
}

func printReport(w io.Writer, rows []models.CategoryCount) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSENT\tRECEIVED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", r.Category, r.Sent, r.Received)
	}
	_ = tw.Flush()
}

func printLogView(w io.Writer, v models.LogView) {
	fmt.Fprintf(w, "sent=%d received=%d index=%d\n", v.SentCount, v.ReceivedCount, v.LoveIndex)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range v.Entries {
		arrow := "->"
		if e.Direction == models.DirectionReceived {
			arrow = "<-"
		}
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), arrow, e.CounterpartUsername, e.Type, e.Message)
	}
	_ = tw.Flush()
}
