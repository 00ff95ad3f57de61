package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ledgermart/ledgermart/cmd/enroll"
	"github.com/ledgermart/ledgermart/cmd/history"
	"github.com/ledgermart/ledgermart/cmd/probe"
	"github.com/ledgermart/ledgermart/cmd/serve"
	"github.com/ledgermart/ledgermart/cmd/version"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

// NewRootCmd assembles the base command and its subcommands.
func NewRootCmd() *cobra.Command {
	logger := logger.NewDefault()
	rootCmd := &cobra.Command{
		Use:   "ledgermart",
		Short: "Ledger-backed order and identity services for a multi-seller marketplace",
		Long:  `ledgermart splits customer orders into per-seller ledger assets, confirms payments against the ledger and manages the enrolled identities it signs with.`,
	}

	rootCmd.AddCommand(serve.Command(logger))
	rootCmd.AddCommand(enroll.NewEnrollCmd(logger))
	rootCmd.AddCommand(history.NewHistoryCmd(logger))
	rootCmd.AddCommand(probe.NewProbeCmd(logger))
	rootCmd.AddCommand(version.NewVersionCmd())
	return rootCmd
}
