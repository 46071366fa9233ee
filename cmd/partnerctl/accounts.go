package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/services"
)

var (
	accountsStatus string
	approveRole    string
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect and approve user accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts, optionally filtered by status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		status := domain.AccountStatus(accountsStatus)
		if accountsStatus != "" && !status.Valid() {
			return fmt.Errorf("invalid status %q", accountsStatus)
		}
		b, err := openBackend(cmd.Context(), backendOptions{})
		if err != nil {
			return err
		}
		defer b.Close()

		accounts, err := b.container.Services.Accounts.ListAccounts(cmd.Context(), status)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		return writeAccounts(cmd.OutOrStdout(), accounts)
	},
}

var accountsApproveCmd = &cobra.Command{
	Use:   "approve EMAIL",
	Short: "Approve a pending account with the given role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), backendOptions{})
		if err != nil {
			return err
		}
		defer b.Close()

		account, err := b.container.Services.Accounts.Approve(cmd.Context(), services.ApproveAccountCommand{
			Actor: operatorCaller(),
			Email: args[0],
			Role:  approveRole,
		})
		if err != nil {
			return fmt.Errorf("approve %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "approved %s as %s\n", account.Email, account.Role)
		return nil
	},
}

func init() {
	accountsListCmd.Flags().StringVar(&accountsStatus, "status", "", "Filter by status (pending, approved, rejected, deleted)")
	accountsApproveCmd.Flags().StringVar(&approveRole, "role", string(domain.RoleUser), "Role to grant (user, manager, admin)")

	accountsCmd.AddCommand(accountsListCmd, accountsApproveCmd)
	rootCmd.AddCommand(accountsCmd)
}

func writeAccounts(w io.Writer, accounts []domain.Account) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tNAME\tROLE\tSTATUS\tCREATED")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Email, a.DisplayName, a.Role, a.Status, domain.FormatTimestamp(a.CreatedAt))
	}
	return tw.Flush()
}
