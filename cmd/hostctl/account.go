package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/openpdv/pdvhost/internal/auth"
	"github.com/openpdv/pdvhost/internal/model"
)

type createdAccount struct {
	ID           string `json:"id"`
	Identifier   string `json:"identifier"`
	Role         string `json:"role"`
	DeviceSerial string `json:"device_serial,omitempty"`
	Secret       string `json:"secret"`
}

func newAccountCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage sync accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.AddCommand(newAccountCreateCmd(e), newAccountListCmd(e), newAccountRevokeCmd(e))
	return cmd
}

func newAccountCreateCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create IDENTIFIER",
		Short: "Register an account and print its secret once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			device, _ := cmd.Flags().GetString("device-serial")
			name, _ := cmd.Flags().GetString("name")
			format, _ := cmd.Flags().GetString("format")

			identifier := strings.TrimSpace(args[0])
			if identifier == "" {
				return fmt.Errorf("identifier must not be empty")
			}
			if !model.IsValidRole(role) {
				return fmt.Errorf("invalid role %q (valid: %s)", role, strings.Join(model.ValidRoles, ", "))
			}
			if role == model.RoleTerminal && device == "" {
				return fmt.Errorf("terminal accounts need --device-serial")
			}

			secret, err := auth.GenerateSecret()
			if err != nil {
				return err
			}

			account := &model.Account{
				ID:         ulid.Make().String(),
				Identifier: identifier,
				SecretHash: secret.Hash,
				Role:       role,
				Name:       name,
				CreatedAt:  e.now(),
			}
			if device != "" {
				account.DeviceSerial = &device
			}

			err = withStore(cmd, e, func(ctx context.Context, s store) error {
				return s.CreateAccount(ctx, account)
			})
			if err != nil {
				return err
			}

			out := createdAccount{
				ID:           account.ID,
				Identifier:   account.Identifier,
				Role:         account.Role,
				DeviceSerial: device,
				Secret:       secret.Plaintext,
			}
			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "account:    %s\n", out.ID)
			fmt.Fprintf(w, "identifier: %s\n", out.Identifier)
			fmt.Fprintf(w, "role:       %s\n", out.Role)
			if out.DeviceSerial != "" {
				fmt.Fprintf(w, "device:     %s\n", out.DeviceSerial)
			}
			fmt.Fprintf(w, "secret:     %s\n", out.Secret)
			fmt.Fprintln(w, "store the secret now; it cannot be shown again")
			return nil
		},
	}
	cmd.Flags().String("role", model.RoleTerminal, "Account role (terminal, backoffice, admin)")
	cmd.Flags().String("device-serial", "", "Serial of the fiscal printer bound to the account")
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("format", "plain", "Output format: plain or json")
	return cmd
}

func newAccountListCmd(e env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, e, func(ctx context.Context, s store) error {
				accounts, err := s.ListAccounts(ctx)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "IDENTIFIER\tROLE\tDEVICE\tSTATUS\tCREATED")
				for _, a := range accounts {
					device, status := "-", "active"
					if a.DeviceSerial != nil {
						device = *a.DeviceSerial
					}
					if a.IsRevoked() {
						status = "revoked"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						a.Identifier, a.Role, device, status, a.CreatedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}
}

func newAccountRevokeCmd(e env) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke IDENTIFIER",
		Short: "Revoke an account; its terminal can no longer sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, e, func(ctx context.Context, s store) error {
				if err := s.RevokeAccount(ctx, args[0]); err != nil {
					return fmt.Errorf("revoke %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
				return nil
			})
		},
	}
}
