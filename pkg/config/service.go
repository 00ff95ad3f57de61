package config

import "path/filepath"

// ConfigService resolves the filesystem layout and ledger coordinates
// the rest of the application reads its settings from. Paths left empty
// default to locations under the data directory.
type ConfigService struct {
	dataPath      string
	dbPath        string
	walletPath    string
	profilePath   string
	identityLabel string
	channelName   string
	chaincodeName string
}

type Params struct {
	DataPath      string
	DBPath        string
	WalletPath    string
	ProfilePath   string
	IdentityLabel string
	ChannelName   string
	ChaincodeName string
}

// NewConfigService creates a new ConfigService instance
func NewConfigService(p Params) *ConfigService {
	s := &ConfigService{
		dataPath:      p.DataPath,
		dbPath:        p.DBPath,
		walletPath:    p.WalletPath,
		profilePath:   p.ProfilePath,
		identityLabel: p.IdentityLabel,
		channelName:   p.ChannelName,
		chaincodeName: p.ChaincodeName,
	}
	if s.dbPath == "" {
		s.dbPath = filepath.Join(s.dataPath, "ledgermart.db")
	}
	if s.walletPath == "" {
		s.walletPath = filepath.Join(s.dataPath, "wallet")
	}
	return s
}

func (s *ConfigService) GetDataPath() string      { return s.dataPath }
func (s *ConfigService) GetDBPath() string        { return s.dbPath }
func (s *ConfigService) GetWalletPath() string    { return s.walletPath }
func (s *ConfigService) GetProfilePath() string   { return s.profilePath }
func (s *ConfigService) GetIdentityLabel() string { return s.identityLabel }
func (s *ConfigService) GetChannelName() string   { return s.channelName }
func (s *ConfigService) GetChaincodeName() string { return s.chaincodeName }
