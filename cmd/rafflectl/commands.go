package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/farellandr/rifa/internal/models"
	"github.com/farellandr/rifa/internal/services"
	"github.com/spf13/cobra"
)

func seedDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-demo",
		Short: "Create an active demo raffle when none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			raffle, created, err := seedDemo(cmd, engine)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintln(cmd.OutOrStdout(), "Raffles already exist; nothing to seed.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created raffle %d (%s)\n", raffle.ID, raffle.Title)
			return nil
		},
	}
}

func seedDemo(cmd *cobra.Command, engine *services.Engine) (*models.Raffle, bool, error) {
	ctx := cmd.Context()
	var count int64
	if err := engine.DB.WithContext(ctx).Model(&models.Raffle{}).Count(&count).Error; err != nil {
		return nil, false, err
	}
	if count > 0 {
		return nil, false, nil
	}

	raffle, err := engine.CreateRaffle(ctx, services.RaffleInput{
		Title:        "Rifa Milo",
		Description:  "Rifa de demostración.",
		PriceCLP:     2000,
		NumbersTotal: 500,
	})
	if err != nil {
		return nil, false, err
	}
	raffle, err = engine.Activate(ctx, raffle.ID)
	if err != nil {
		return nil, false, err
	}
	return raffle, true, nil
}

func createAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-admin",
		Short: "Create or reset the admin account from ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cfg, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			if cfg.AdminPassword == "" {
				return fmt.Errorf("ADMIN_PASSWORD is required")
			}
			user, err := engine.UpsertStaffUser(cmd.Context(), services.StaffInput{
				Username: cfg.AdminUsername,
				Email:    cfg.AdminEmail,
				Password: cfg.AdminPassword,
				Role:     models.RoleAdmin,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Admin %s ready\n", user.Username)
			return nil
		},
	}
}

func settleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle <gateway-payment-id>...",
		Short: "Mark payments as paid and assign their chosen numbers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			outcomes := engine.SettleMany(cmd.Context(), args)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcomes)
		},
	}
}

func activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <raffle-id>",
		Short: "Make a raffle the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid raffle id %q", args[0])
			}
			engine, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			raffle, err := engine.Activate(cmd.Context(), uint(id))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Raffle %d (%s) is now active\n", raffle.ID, raffle.Title)
			return nil
		},
	}
}

func expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-reservations",
		Short: "Mark pending transfer reservations past their deadline as expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := engine.ExpireStaleReservations(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Expired %d reservations\n", n)
			return nil
		},
	}
}
