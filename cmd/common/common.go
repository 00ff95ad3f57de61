package common

import (
	"context"

	"github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/fabric/gateway"
	"github.com/ledgermart/ledgermart/pkg/fabric/networkconfig"
	"github.com/ledgermart/ledgermart/pkg/fabric/wallet"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

// LedgerFlags are the connection settings shared by every command that
// talks to the ledger.
type LedgerFlags struct {
	ProfilePath   string
	WalletPath    string
	IdentityLabel string
	ChannelName   string
	ChaincodeName string
	MSPID         string
	Discovery     bool
}

// ResolveProfile loads the connection profile and verifies the signing
// identity exists in the wallet. Missing wallet entries fail outright,
// there is no fallback identity.
func ResolveProfile(flags LedgerFlags) (*networkconfig.NetworkConfig, error) {
	profile, _, err := resolve(flags)
	return profile, err
}

func resolve(flags LedgerFlags) (*networkconfig.NetworkConfig, *wallet.Identity, error) {
	profile, err := networkconfig.LoadFromFile(flags.ProfilePath)
	if err != nil {
		return nil, nil, err
	}

	walletStore, err := wallet.NewFileSystemWallet(flags.WalletPath)
	if err != nil {
		return nil, nil, err
	}

	id, err := walletStore.Get(flags.IdentityLabel)
	if err != nil {
		return nil, nil, err
	}
	if flags.MSPID != "" && id.MSPID != flags.MSPID {
		return nil, nil, errors.NewConfigError("wallet identity belongs to a different MSP", nil, map[string]interface{}{
			"label":    flags.IdentityLabel,
			"expected": flags.MSPID,
			"actual":   id.MSPID,
		})
	}
	return profile, id, nil
}

// ConnectSession resolves the profile and identity and opens a gateway
// session. The caller owns the session and must close it.
func ConnectSession(ctx context.Context, flags LedgerFlags, log *logger.Logger) (*gateway.Session, *networkconfig.NetworkConfig, error) {
	profile, id, err := resolve(flags)
	if err != nil {
		return nil, nil, err
	}

	opts := gateway.DefaultOptions()
	opts.DiscoveryEnabled = flags.Discovery

	session, err := gateway.NewManager(log).Connect(ctx, profile, id, flags.ChannelName, opts)
	if err != nil {
		return nil, nil, err
	}
	return session, profile, nil
}
