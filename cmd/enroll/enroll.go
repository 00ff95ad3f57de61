package enroll

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/fabric/ca"
	"github.com/ledgermart/ledgermart/pkg/fabric/networkconfig"
	"github.com/ledgermart/ledgermart/pkg/fabric/wallet"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

// NewEnrollCmd creates the enroll command tree
func NewEnrollCmd(log *logger.Logger) *cobra.Command {
	enrollCmd := newEnrollCmd(log)
	enrollCmd.AddCommand(newImportCmd(log))
	return enrollCmd
}

func newEnrollCmd(log *logger.Logger) *cobra.Command {
	var (
		profilePath  string
		walletPath   string
		mspID        string
		enrollmentID string
		secret       string
		label        string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll an identity with the organization CA",
		Long:  `Enroll with the certificate authority named in the connection profile and store the signed identity in the wallet. Enrolling under an existing label replaces the stored identity. The enrollment secret is one-time; a rejected enrollment is reported, never retried.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := networkconfig.LoadFromFile(profilePath)
			if err != nil {
				return err
			}

			walletStore, err := wallet.NewFileSystemWallet(walletPath)
			if err != nil {
				return err
			}
			_, org, err := profile.OrganizationByMSPID(mspID)
			if err != nil {
				return err
			}
			if len(org.CertificateAuthorities) == 0 {
				return errors.NewConfigError("organization has no certificate authority", nil, map[string]interface{}{
					"mspId": mspID,
				})
			}
			caDef, ok := profile.CertificateAuthorities[org.CertificateAuthorities[0]]
			if !ok {
				return errors.NewConfigError("certificate authority not defined in profile", nil, map[string]interface{}{
					"ca": org.CertificateAuthorities[0],
				})
			}
			trustRoot, err := caDef.TLSCACerts.Resolve()
			if err != nil {
				return err
			}

			enroller := ca.NewEnrollmentService(log, timeout)
			id, err := enroller.Enroll(cmd.Context(), ca.EnrollmentRequest{
				CAURL:        caDef.URL,
				CAName:       caDef.CAName,
				TLSRootPEM:   trustRoot,
				EnrollmentID: enrollmentID,
				Secret:       secret,
				MSPID:        mspID,
			})
			if err != nil {
				return err
			}

			if err := walletStore.Put(label, id); err != nil {
				return err
			}

			fmt.Printf("Enrolled %s as %q in wallet %s\n", enrollmentID, label, walletPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&profilePath, "profile", "connection-profile.yaml", "Path to the connection profile")
	cmd.Flags().StringVar(&walletPath, "wallet", "wallet", "Path to the wallet directory")
	cmd.Flags().StringVar(&mspID, "msp-id", "", "MSP ID of the organization to enroll with")
	cmd.Flags().StringVar(&enrollmentID, "id", "", "Enrollment ID registered with the CA")
	cmd.Flags().StringVar(&secret, "secret", "", "One-time enrollment secret")
	cmd.Flags().StringVar(&label, "label", "", "Wallet label to store the identity under")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Deadline for the CA request")
	cmd.MarkFlagRequired("msp-id")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("secret")
	cmd.MarkFlagRequired("label")

	return cmd
}

func newImportCmd(log *logger.Logger) *cobra.Command {
	var (
		walletPath string
		certPath   string
		keyDir     string
		mspID      string
		label      string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an existing MSP identity into the wallet",
		Long:  `Import a certificate and its private key from a crypto-material directory, as produced by cryptogen or a CA client, into the wallet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			walletStore, err := wallet.NewFileSystemWallet(walletPath)
			if err != nil {
				return err
			}

			enroller := ca.NewEnrollmentService(log, 0)
			id, err := enroller.ImportFromDisk(certPath, keyDir, mspID, label)
			if err != nil {
				return err
			}

			if err := walletStore.Put(label, id); err != nil {
				return err
			}

			fmt.Printf("Imported %s as %q in wallet %s\n", certPath, label, walletPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&walletPath, "wallet", "wallet", "Path to the wallet directory")
	cmd.Flags().StringVar(&certPath, "cert", "", "Path to the signing certificate PEM")
	cmd.Flags().StringVar(&keyDir, "key-dir", "", "Directory holding the matching private key")
	cmd.Flags().StringVar(&mspID, "msp-id", "", "MSP ID the identity belongs to")
	cmd.Flags().StringVar(&label, "label", "", "Wallet label to store the identity under")
	cmd.MarkFlagRequired("cert")
	cmd.MarkFlagRequired("key-dir")
	cmd.MarkFlagRequired("msp-id")
	cmd.MarkFlagRequired("label")

	return cmd
}
