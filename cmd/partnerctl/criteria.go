package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/partner-scorecard/api/internal/domain"
)

var operatorEmail string

var criteriaCmd = &cobra.Command{
	Use:   "criteria",
	Short: "Manage the evaluation criteria collection",
}

var criteriaSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Copy the built-in question catalog into an empty criteria collection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := openBackend(cmd.Context(), backendOptions{})
		if err != nil {
			return err
		}
		defer b.Close()

		written, err := b.container.Services.Criteria.Seed(cmd.Context(), operatorCaller())
		if err != nil {
			return fmt.Errorf("seed criteria: %w", err)
		}
		if written == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "criteria collection already populated; nothing written")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d criteria\n", written)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&operatorEmail, "operator", "partnerctl@system", "Email recorded as the actor of administrative changes")

	criteriaCmd.AddCommand(criteriaSeedCmd)
	rootCmd.AddCommand(criteriaCmd)
}

// operatorCaller is the admin identity maintenance commands act as.
func operatorCaller() domain.Caller {
	return domain.Caller{Email: operatorEmail, Role: domain.RoleAdmin}
}
