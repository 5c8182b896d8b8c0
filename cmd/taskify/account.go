package main

import (
	"errors"
	"fmt"
	"os"

	"taskify/backend/internal/server"
	"taskify/backend/internal/services"

	"github.com/spf13/cobra"
)

func newAccountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage login accounts",
	}
	cmd.AddCommand(newAccountCreateCmd(opts))
	return cmd
}

func newAccountCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		username   string
		password   string
		assigneeID int64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a login account directly in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("TASKIFY_PASSWORD")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			pool, err := server.OpenDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			auth := services.NewAuthService(services.AuthConfig{
				Secret:     cfg.Auth.JWTSecret,
				Issuer:     cfg.Auth.Issuer,
				BcryptCost: cfg.Auth.BCryptCost,
			})
			user, err := auth.CreateUser(pool.DB.WithContext(cmd.Context()), services.Credentials{
				Username: username,
				Password: password,
			}, assigneeID)
			if err != nil {
				var verr *services.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("invalid account: %w", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created account %s (%s) for assignee %d\n", user.Username, user.ID, user.AssigneeID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "password (defaults to $TASKIFY_PASSWORD)")
	cmd.Flags().Int64Var(&assigneeID, "assignee-id", 0, "assignee id matched against tasks")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("assignee-id")
	return cmd
}
