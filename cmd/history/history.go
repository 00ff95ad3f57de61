package history

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgermart/ledgermart/cmd/common"
	"github.com/ledgermart/ledgermart/pkg/fabric/audit"
	"github.com/ledgermart/ledgermart/pkg/fabric/contract"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd(log *logger.Logger) *cobra.Command {
	var (
		ledger   common.LedgerFlags
		asJSON   bool
		assetKey string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the ledger history of a sub-order",
		Long:  `Query the full modification history of a sub-order asset. Records are printed in ledger commit order; wall-clock timestamps come from the submitting client and may be skewed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, err := common.ConnectSession(cmd.Context(), ledger, log)
			if err != nil {
				return err
			}
			defer session.Close()

			invoker := contract.NewClient(session, ledger.ChaincodeName, log)
			history, err := audit.NewQuery(invoker, log).GetHistory(cmd.Context(), assetKey)
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(history.Records())
			}

			writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(writer, "TX ID\tTIMESTAMP\tDELETED\tVALUE")
			for _, record := range history.Records() {
				value := string(record.Value)
				if record.IsDelete {
					value = "-"
				}
				fmt.Fprintf(writer, "%s\t%s\t%t\t%s\n",
					record.TxID,
					record.Timestamp.Format(time.RFC3339),
					record.IsDelete,
					value,
				)
			}
			return writer.Flush()
		},
	}

	cmd.Flags().StringVar(&assetKey, "key", "", "Sub-order asset key, e.g. order_123_1")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	cmd.Flags().StringVar(&ledger.ProfilePath, "profile", "connection-profile.yaml", "Path to the connection profile")
	cmd.Flags().StringVar(&ledger.WalletPath, "wallet", "wallet", "Path to the wallet directory")
	cmd.Flags().StringVar(&ledger.IdentityLabel, "identity", "appUser", "Wallet label of the signing identity")
	cmd.Flags().StringVar(&ledger.ChannelName, "channel", "ecommercechannel", "Channel name")
	cmd.Flags().StringVar(&ledger.ChaincodeName, "chaincode", "ordercontract", "Chaincode name")
	cmd.Flags().BoolVar(&ledger.Discovery, "discovery", true, "Use service discovery for endorsement")
	cmd.MarkFlagRequired("key")

	return cmd
}
