// Package main implements partnerctl, the operator CLI for the partner scorecard API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "partnerctl",
	Short: "Operate the partner scorecard backend",
	Long: `partnerctl runs maintenance tasks against the partner scorecard data store.

Commands that touch Firestore or Cloud Storage read the same API_* environment
variables as the API server. A .env file in the working directory is loaded first.`,
	SilenceUsage: true,
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
