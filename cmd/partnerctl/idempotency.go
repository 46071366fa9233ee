package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/partner-scorecard/api/internal/platform/idempotency"
)

var cleanupBatchSize int

var idempotencyCmd = &cobra.Command{
	Use:   "idempotency",
	Short: "Maintain stored idempotency records",
}

var idempotencyCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired idempotency records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := openBackend(cmd.Context(), backendOptions{})
		if err != nil {
			return err
		}
		defer b.Close()

		limit := cleanupBatchSize
		if limit <= 0 {
			limit = b.cfg.Idempotency.CleanupBatchSize
		}
		store := idempotency.NewFirestoreStore(b.provider)
		total := 0
		for {
			removed, err := store.CleanupExpired(cmd.Context(), time.Now().UTC(), limit)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			total += removed
			if removed < limit {
				break
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired records\n", total)
		return nil
	},
}

func init() {
	idempotencyCleanupCmd.Flags().IntVar(&cleanupBatchSize, "batch", 0, "Records deleted per batch (defaults to API_IDEMPOTENCY_CLEANUP_BATCH)")

	idempotencyCmd.AddCommand(idempotencyCleanupCmd)
	rootCmd.AddCommand(idempotencyCmd)
}
