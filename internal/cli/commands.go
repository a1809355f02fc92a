package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avstrong/checkin/internal/app"
	"github.com/avstrong/checkin/internal/config"
	"github.com/avstrong/checkin/internal/reconcile"
	"github.com/avstrong/checkin/internal/reservation"
)

func serveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Serve(cmd.Context(), e.conf, e.l)
		},
	}
}

func syncCmd(e *env) *cobra.Command {
	var (
		date    string
		offsets []int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull arrivals for the days around a date from the PMS in one batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reference := time.Now().UTC()

			if date != "" {
				parsed, err := time.Parse(reservation.DateLayout, date)
				if err != nil {
					return fmt.Errorf("--date must be formatted as YYYY-MM-DD: %w", err)
				}

				reference = parsed
			}

			return e.withServices(cmd.Context(), func(s *app.Services) error {
				result, err := s.Reconciler.SyncWindow(cmd.Context(), reference, offsets)
				if err != nil {
					return fmt.Errorf("sync arrivals: %w", err)
				}

				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Reference date, YYYY-MM-DD (default today, UTC)")
	cmd.Flags().IntSliceVar(&offsets, "offsets", reconcile.DefaultWindow, "Day offsets around the reference date")

	return cmd
}

func resolveCmd(e *env) *cobra.Command {
	var (
		refresh   bool
		criteria  reconcile.Criteria
		firstLast string
	)

	cmd := &cobra.Command{
		Use:   "resolve [reservationId]",
		Short: "Resolve a reservation by id or guest name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				criteria.ID = args[0]
			}

			if firstLast != "" {
				first, last, _ := strings.Cut(firstLast, " ")
				criteria.FirstName, criteria.LastName = first, last
			}

			return e.withServices(cmd.Context(), func(s *app.Services) error {
				var (
					res *reservation.Reservation
					err error
				)

				if refresh {
					res, err = s.Reconciler.Refresh(cmd.Context(), criteria.ID)
				} else {
					res, err = s.Reconciler.Resolve(cmd.Context(), criteria)
				}

				if err != nil {
					return fmt.Errorf("resolve reservation: %w", err)
				}

				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-read the reservation from the PMS, skipping the local store")
	cmd.Flags().StringVar(&firstLast, "name", "", `Guest name, "First Last"`)
	cmd.Flags().StringVar(&criteria.CheckInDate, "checkin", "", "Check-in date, YYYY-MM-DD")
	cmd.Flags().StringVar(&criteria.CheckOutDate, "checkout", "", "Check-out date, YYYY-MM-DD")

	return cmd
}

func releaseCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "release <reservationId>",
		Short: "Release the deposit hold of one reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withServices(cmd.Context(), func(s *app.Services) error {
				dep, err := s.Deposits.ReleaseHold(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("release deposit: %w", err)
				}

				return printJSON(cmd.OutOrStdout(), dep)
			})
		},
	}
}

func releaseDueCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "release-due",
		Short: "Release every deposit hold whose release time has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withServices(cmd.Context(), func(s *app.Services) error {
				report, err := s.Deposits.ReleaseDue(cmd.Context(), time.Now().UTC())
				if err != nil {
					return fmt.Errorf("release due deposits: %w", err)
				}

				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}

				if len(report.Failed) > 0 {
					return fmt.Errorf("%d deposit releases failed", len(report.Failed)) //nolint:goerr113
				}

				return nil
			})
		},
	}
}

func pmsCheckCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "pms-check",
		Short: "Check PMS credentials and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withServices(cmd.Context(), func(s *app.Services) error {
				message, err := s.Reconciler.CheckConnection(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), message)

				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		// Overrides the root hook; there is nothing to load yet.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "checkin.yaml"
			if len(args) == 1 {
				path = args[0]
			}

			if err := config.WriteDefault(path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)

			return nil
		},
	})

	return cmd
}
