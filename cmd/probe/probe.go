package probe

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgermart/ledgermart/pkg/fabric/networkconfig"
	"github.com/ledgermart/ledgermart/pkg/logger"
	"github.com/ledgermart/ledgermart/pkg/probe"
)

// NewProbeCmd creates the probe command
func NewProbeCmd(log *logger.Logger) *cobra.Command {
	var (
		profilePath string
		deadline    time.Duration
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check TLS reachability of every endpoint in the connection profile",
		Long:  `Open a TLS connection to each peer and orderer in the connection profile and report the outcome per endpoint. Exits non-zero when any endpoint is unhealthy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := networkconfig.LoadFromFile(profilePath)
			if err != nil {
				return err
			}

			results := probe.NewProber(log, deadline).Run(cmd.Context(), profile)

			if asJSON {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(results); err != nil {
					return err
				}
			} else {
				writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
				fmt.Fprintln(writer, "KIND\tENDPOINT\tADDRESS\tOUTCOME\tDETAIL")
				for _, result := range results {
					fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
						result.Kind, result.Name, result.Address, result.Outcome, result.Detail)
				}
				if err := writer.Flush(); err != nil {
					return err
				}
			}

			for _, result := range results {
				if result.Outcome != probe.OutcomeOK {
					return fmt.Errorf("%d of %d endpoints unhealthy", countUnhealthy(results), len(results))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profilePath, "profile", "connection-profile.yaml", "Path to the connection profile")
	cmd.Flags().DurationVar(&deadline, "deadline", probe.DefaultDeadline, "Per-endpoint connection deadline")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

func countUnhealthy(results []probe.Result) int {
	n := 0
	for _, result := range results {
		if result.Outcome != probe.OutcomeOK {
			n++
		}
	}
	return n
}
