package gateway

import (
	"context"
	"crypto/tls"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/ledgermart/ledgermart/pkg/certutils"
	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/fabric/networkconfig"
	"github.com/ledgermart/ledgermart/pkg/fabric/wallet"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

// Options controls how a gateway session is established.
type Options struct {
	// DiscoveryEnabled lets the gateway peer discover endorsers
	// dynamically. Disable it on NAT'd or partially reachable topologies:
	// endorsement is then pinned to the identity's own organization as
	// listed in the connection profile.
	DiscoveryEnabled bool
	EvaluateTimeout  time.Duration
	EndorseTimeout   time.Duration
	SubmitTimeout    time.Duration
	CommitTimeout    time.Duration
}

// DefaultOptions mirrors the gateway SDK defaults.
func DefaultOptions() Options {
	return Options{
		DiscoveryEnabled: true,
		EvaluateTimeout:  5 * time.Second,
		EndorseTimeout:   15 * time.Second,
		SubmitTimeout:    5 * time.Second,
		CommitTimeout:    time.Minute,
	}
}

// Session is a live authenticated connection scoped to one organization,
// one identity and one channel. It holds a gRPC connection and TLS state;
// Close must run on every exit path of the owner.
type Session struct {
	gateway       *client.Gateway
	conn          *grpc.ClientConn
	network       *client.Network
	channel       string
	mspID         string
	peerName      string
	endorsingOrgs []string
	logger        *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Manager opens gateway sessions from a connection profile and wallet
// identities.
type Manager struct {
	logger *logger.Logger
}

func NewManager(logger *logger.Logger) *Manager {
	return &Manager{logger: logger}
}

// Connect resolves a peer endpoint reachable by the identity's
// organization, establishes a mutually-trusted gRPC channel to it and
// binds the session to channelName. One session serves one channel; a
// second channel needs a second Connect.
func (m *Manager) Connect(ctx context.Context, profile *networkconfig.NetworkConfig, id *wallet.Identity, channelName string, opts Options) (*Session, error) {
	if channelName == "" {
		return nil, apperrors.NewValidationError("channel name is required", nil)
	}

	orgName, org, err := profile.OrganizationByMSPID(id.MSPID)
	if err != nil {
		return nil, err
	}
	if len(org.Peers) == 0 {
		return nil, apperrors.NewConfigError("organization has no peers in connection profile", nil, map[string]interface{}{
			"organization": orgName,
		})
	}

	peerName := org.Peers[rand.Int()%len(org.Peers)]
	peerConfig, ok := profile.Peers[peerName]
	if !ok {
		return nil, apperrors.NewConfigError("peer not found in connection profile", nil, map[string]interface{}{
			"peer": peerName,
		})
	}

	conn, err := dialPeer(peerConfig, m.logger)
	if err != nil {
		return nil, apperrors.NewConnectionError("failed to dial peer", err, map[string]interface{}{
			"organization": orgName,
			"peer":         peerName,
			"url":          peerConfig.URL,
		})
	}

	userCert, err := identity.CertificateFromPEM([]byte(id.Certificate))
	if err != nil {
		conn.Close()
		return nil, apperrors.NewConfigError("failed to parse identity certificate", err, map[string]interface{}{
			"label": id.Label,
		})
	}
	x509ID, err := identity.NewX509Identity(id.MSPID, userCert)
	if err != nil {
		conn.Close()
		return nil, apperrors.NewConfigError("failed to build X.509 identity", err, map[string]interface{}{
			"label": id.Label,
		})
	}
	privateKey, err := identity.PrivateKeyFromPEM([]byte(id.PrivateKey))
	if err != nil {
		conn.Close()
		return nil, apperrors.NewConfigError("failed to parse identity private key", err, map[string]interface{}{
			"label": id.Label,
		})
	}
	signer, err := identity.NewPrivateKeySign(privateKey)
	if err != nil {
		conn.Close()
		return nil, apperrors.NewConfigError("failed to create signer", err, map[string]interface{}{
			"label": id.Label,
		})
	}

	gw, err := client.Connect(
		x509ID,
		client.WithSign(signer),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(opts.EvaluateTimeout),
		client.WithEndorseTimeout(opts.EndorseTimeout),
		client.WithSubmitTimeout(opts.SubmitTimeout),
		client.WithCommitStatusTimeout(opts.CommitTimeout),
	)
	if err != nil {
		conn.Close()
		return nil, apperrors.NewConnectionError("failed to connect gateway", err, map[string]interface{}{
			"organization": orgName,
			"peer":         peerName,
		})
	}

	session := &Session{
		gateway:  gw,
		conn:     conn,
		network:  gw.GetNetwork(channelName),
		channel:  channelName,
		mspID:    id.MSPID,
		peerName: peerName,
		logger:   m.logger,
	}
	if !opts.DiscoveryEnabled {
		session.endorsingOrgs = []string{id.MSPID}
	}

	m.logger.Info("gateway session established",
		"organization", orgName,
		"peer", peerName,
		"channel", channelName,
		"identity", id.Label,
		"discovery", opts.DiscoveryEnabled,
	)

	// The caller owns the session, but a cancelled context must still
	// release it when the caller never gets the chance.
	if ctx.Err() != nil {
		session.Close()
		return nil, apperrors.NewTimeoutError("context cancelled during gateway connect", ctx.Err(), nil)
	}

	return session, nil
}

func dialPeer(peerConfig networkconfig.Peer, log *logger.Logger) (*grpc.ClientConn, error) {
	address := strings.Replace(peerConfig.URL, "grpcs://", "", 1)
	address = strings.Replace(address, "grpc://", "", 1)

	tlsConfig, err := peerTLSConfig(peerConfig, log)
	if err != nil {
		return nil, err
	}

	return grpc.NewClient(address, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
}

// peerTLSConfig builds the TLS state for a peer endpoint. allow-insecure
// disables certificate verification and is only for local and development
// topologies; production profiles must carry a trust root.
func peerTLSConfig(peerConfig networkconfig.Peer, log *logger.Logger) (*tls.Config, error) {
	tlsConfig := &tls.Config{}
	if peerConfig.GRPCOptions.AllowInsecure {
		log.Warn("peer certificate verification disabled; local/dev topologies only", "url", peerConfig.URL)
		tlsConfig.InsecureSkipVerify = true
	} else {
		trustRoot, err := peerConfig.TLSCACerts.Resolve()
		if err != nil {
			return nil, err
		}
		pool, err := certutils.NewCertPool(trustRoot)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}
	if override := peerConfig.GRPCOptions.SSLTargetNameOverride; override != "" {
		tlsConfig.ServerName = override
	}
	return tlsConfig, nil
}

// Contract returns a handle on a named contract within the session's
// channel.
func (s *Session) Contract(name string) *client.Contract {
	return s.network.GetContract(name)
}

// Channel returns the channel this session is bound to.
func (s *Session) Channel() string {
	return s.channel
}

// MSPID returns the organization the session's identity belongs to.
func (s *Session) MSPID() string {
	return s.mspID
}

// EndorsingOrganizations returns the static endorsement set, or nil when
// dynamic discovery is in effect.
func (s *Session) EndorsingOrganizations() []string {
	return s.endorsingOrgs
}

// Close releases the gateway and the underlying gRPC connection. It is
// idempotent and safe to defer on every exit path.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.gateway.Close(); err != nil {
			s.closeErr = err
		}
		if err := s.conn.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		s.logger.Debug("gateway session closed", "peer", s.peerName, "channel", s.channel)
	})
	return s.closeErr
}
