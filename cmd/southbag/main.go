package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"southbag/internal/auth"
	cl "southbag/internal/cli"
	"southbag/internal/config"
	"southbag/internal/ledger"
	"southbag/internal/money"
	"southbag/internal/syncq"

	"github.com/spf13/cobra"
)

func main() {
	var flags cl.Settings
	root := &cobra.Command{
		Use:           "southbag",
		Short:         "Southbag Banking admin CLI. Fees apply.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.BaseURL, "api", "", "Southbag API base URL (default $SOUTHBAG_API_BASE_URL)")
	root.PersistentFlags().StringVar(&flags.APIKey, "key", "", "API key (default $SOUTHBAG_API_KEY or the saved login)")

	root.AddCommand(
		newLoginCmd(&flags),
		newLogoutCmd(),
		newKeyCmd(),
		newAccountCmd(&flags),
		newHistoryCmd(&flags),
		newPricesCmd(&flags),
		newLoanCmd(&flags),
		newFeesCmd(&flags),
		newSyncCmd(&flags),
	)

	if err := root.Execute(); err != nil {
		printError(describe(err))
		os.Exit(1)
	}
}

// settings resolves flags first, then the saved login, then the environment.
func settings(flags *cl.Settings) cl.Settings {
	saved, err := cl.LoadSettings()
	if err != nil {
		printWarn("Ignoring unreadable ~/.southbag/config.json: " + err.Error())
	}
	env := config.LoadCLIFromEnv()
	return flags.Merge(saved).Merge(cl.Settings{BaseURL: env.APIBaseURL, APIKey: env.APIKey})
}

func newClient(flags *cl.Settings) *cl.Client {
	s := settings(flags)
	return cl.NewClient(s.BaseURL, s.APIKey)
}

func describe(err error) string {
	var apiErr *cl.APIError
	if errors.As(err, &apiErr) && apiErr.Rejection != nil {
		return "The bank says no: " + apiErr.Rejection.Error()
	}
	return "error: " + err.Error()
}

// mutate sends a write, queueing it for `southbag sync` when the bank could
// not be reached.
func mutate(q syncq.Command, send func(idem string) error) error {
	err := send(q.IdempotencyKey)
	if err == nil || !cl.Retryable(err) {
		return err
	}
	if qerr := syncq.Push(q); qerr != nil {
		return fmt.Errorf("%w (queueing also failed: %v)", err, qerr)
	}
	printWarn(fmt.Sprintf("Bank unreachable (%v). Queued %s %s, run `southbag sync` later.", err, q.Method, q.Path))
	return nil
}

func newLoginCmd(flags *cl.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save the API address and key for later commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			current := settings(flags)
			base, err := promptOptional(fmt.Sprintf("API base URL [%s]", current.BaseURL))
			if err != nil {
				return err
			}
			if base == "" {
				base = current.BaseURL
			}
			key, err := promptSecret("API key")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := cl.NewClient(base, key).Prices(ctx); err != nil {
				return fmt.Errorf("key check failed: %w", err)
			}
			if err := cl.SaveSettings(cl.Settings{BaseURL: base, APIKey: key}); err != nil {
				return err
			}
			printSuccess("Logged in. Settings saved to ~/.southbag/config.json.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSettings(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newKeyCmd() *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "API key helpers",
	}
	keyCmd.AddCommand(&cobra.Command{
		Use:   "hash",
		Short: "Print the bcrypt hash to put in SOUTHBAG_API_KEY_HASH",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := promptSecret("New API key")
			if err != nil {
				return err
			}
			again, err := promptSecret("Repeat API key")
			if err != nil {
				return err
			}
			if key != again {
				return errors.New("keys do not match")
			}
			hash, err := auth.HashKey(key)
			if err != nil {
				return err
			}
			printInfo("SOUTHBAG_API_KEY_HASH=" + hash)
			return nil
		},
	})
	return keyCmd
}

func newAccountCmd(flags *cl.Settings) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Open, inspect, freeze and reclassify accounts",
	}

	var name string
	openCmd := &cobra.Command{
		Use:   "open <owner-id>",
		Short: "Open an account (opening fee applies)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(flags)
			q := syncq.New(http.MethodPost, "/v1/accounts", map[string]any{"owner_id": args[0], "name": name})
			return mutate(q, func(idem string) error {
				acct, err := client.Open(ctx, args[0], name, idem)
				if err != nil {
					return err
				}
				renderAccount(acct)
				return nil
			})
		},
	}
	openCmd.Flags().StringVar(&name, "name", "", "display name on the card")

	showCmd := &cobra.Command{
		Use:   "show <owner-id>",
		Short: "Show an account card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			acct, err := newClient(flags).Account(ctx, args[0])
			if err != nil {
				return err
			}
			renderAccount(acct)
			return nil
		},
	}

	freezeCmd := &cobra.Command{
		Use:   "freeze <owner-id>",
		Short: "Freeze an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(flags)
			q := syncq.New(http.MethodPost, cl.AccountPath(args[0], "freeze"), nil)
			return mutate(q, func(idem string) error {
				if err := client.Freeze(ctx, args[0], idem); err != nil {
					return err
				}
				printSuccess("Account frozen. Fees continue.")
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <owner-id> <active|frozen|suspicious|vibes-based>",
		Short: "Set an account status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := ledger.AccountStatus(strings.ToLower(strings.TrimSpace(args[1])))
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(flags)
			q := syncq.New(http.MethodPut, cl.AccountPath(args[0], "status"), map[string]any{"status": string(status)})
			return mutate(q, func(idem string) error {
				if err := client.SetStatus(ctx, args[0], status, idem); err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Status set to %s.", status))
				return nil
			})
		},
	}

	accountCmd.AddCommand(openCmd, showCmd, freezeCmd, statusCmd)
	return accountCmd
}

func newHistoryCmd(flags *cl.Settings) *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history <owner-id>",
		Short: "Print the latest transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(flags).History(ctx, args[0], limit)
			if err != nil {
				return err
			}
			renderStatement(args[0], rows)
			return nil
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "rows to show")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear <owner-id>",
		Short: "Delete an account's transaction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(flags)
			q := syncq.New(http.MethodDelete, cl.AccountPath(args[0], "history"), nil)
			return mutate(q, func(idem string) error {
				n, err := client.ClearHistory(ctx, args[0], idem)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Shredded %d transactions. The balance remembers.", n))
				return nil
			})
		},
	})
	return historyCmd
}

func newPricesCmd(flags *cl.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Show crypto desk prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			coins, err := newClient(flags).Prices(ctx)
			if err != nil {
				return err
			}
			renderPrices(coins)
			return nil
		},
	}
}

func newLoanCmd(flags *cl.Settings) *cobra.Command {
	loanCmd := &cobra.Command{
		Use:   "loan",
		Short: "Inspect, take or repay loans",
	}
	loanCmd.AddCommand(
		&cobra.Command{
			Use:   "status <owner-id>",
			Short: "Show the active loan and what is owed now",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				view, err := newClient(flags).LoanStatus(ctx, args[0])
				if err != nil {
					return err
				}
				renderLoan(view)
				return nil
			},
		},
		&cobra.Command{
			Use:   "take <owner-id> <amount>",
			Short: "Borrow up to $10.00",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := money.Parse(args[1])
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				client := newClient(flags)
				q := syncq.New(http.MethodPost, cl.AccountPath(args[0], "loan"), map[string]any{"amount": amount.String()})
				return mutate(q, func(idem string) error {
					res, err := client.TakeLoan(ctx, args[0], amount, idem)
					if err != nil {
						return err
					}
					printSuccess(fmt.Sprintf("Borrowed %s at %s%% per hour. Balance %s.",
						money.Format(res.Loan.Principal), res.Loan.Rate.Shift(2).StringFixed(0), money.FormatMilli(res.Balance)))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "repay <owner-id>",
			Short: "Repay the active loan in full",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				client := newClient(flags)
				q := syncq.New(http.MethodPost, cl.AccountPath(args[0], "loan", "repay"), nil)
				return mutate(q, func(idem string) error {
					res, err := client.RepayLoan(ctx, args[0], idem)
					if err != nil {
						return err
					}
					printSuccess(fmt.Sprintf("Repaid %s. Balance %s.", money.Format(res.Owed), money.FormatMilli(res.Balance)))
					return nil
				})
			},
		},
	)
	return loanCmd
}

func newFeesCmd(flags *cl.Settings) *cobra.Command {
	feesCmd := &cobra.Command{
		Use:   "fees",
		Short: "Fee operations",
	}
	var (
		idle  time.Duration
		limit int
	)
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Charge the maintenance fee to idle accounts now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			client := newClient(flags)
			q := syncq.New(http.MethodPost, "/v1/fees/sweep", map[string]any{"idle": idle.String(), "limit": limit})
			return mutate(q, func(idem string) error {
				res, err := client.SweepFees(ctx, idle, limit, idem)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Charged %d accounts, %s collected.", res.Charged, money.Format(res.Total)))
				return nil
			})
		},
	}
	sweepCmd.Flags().DurationVar(&idle, "idle", 24*time.Hour, "charge accounts with no fee for this long")
	sweepCmd.Flags().IntVar(&limit, "limit", 100, "accounts per sweep")
	feesCmd.AddCommand(sweepCmd)
	return feesCmd
}

func newSyncCmd(flags *cl.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while the bank was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(flags)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			sent, failures, err := syncq.Replay(ctx, func(ctx context.Context, q syncq.Command) error {
				_, err := client.Do(ctx, q.Method, q.Path, q.Body, q.IdempotencyKey)
				return err
			})
			for _, f := range failures {
				msg := fmt.Sprintf("%s %s: %s", f.Command.Method, f.Command.Path, describe(f.Err))
				if f.Dropped {
					printError("Dropped " + msg)
				} else {
					printWarn("Still queued " + msg + " (attempt " + strconv.Itoa(f.Command.Attempts) + ")")
				}
			}
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Synced %d commands, %d still queued.", sent, len(queue)-sent-dropped(failures)))
			return nil
		},
	}
}

func dropped(failures []syncq.Failure) int {
	n := 0
	for _, f := range failures {
		if f.Dropped {
			n++
		}
	}
	return n
}
