package networkconfig

import (
	"os"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
)

// NetworkConfig is the connection profile describing the ledger network
// topology reachable by this process: organizations, their peers and
// orderers, and the certificate authorities that issue their identities.
type NetworkConfig struct {
	Name                   string                          `yaml:"name"`
	Version                string                          `yaml:"version"`
	Client                 ClientConfig                    `yaml:"client"`
	Organizations          map[string]Organization         `yaml:"organizations"`
	Orderers               map[string]Orderer              `yaml:"orderers"`
	Peers                  map[string]Peer                 `yaml:"peers"`
	CertificateAuthorities map[string]CertificateAuthority `yaml:"certificateAuthorities"`
	Channels               map[string]Channel              `yaml:"channels"`
}

// ClientConfig names the organization this client acts for by default.
type ClientConfig struct {
	Organization string `yaml:"organization"`
}

// Organization represents one member organization of the network.
type Organization struct {
	MSPID                  string   `yaml:"mspid"`
	Peers                  []string `yaml:"peers"`
	Orderers               []string `yaml:"orderers"`
	CertificateAuthorities []string `yaml:"certificateAuthorities"`
}

// Orderer represents an ordering-service node.
type Orderer struct {
	URL         string      `yaml:"url"`
	GRPCOptions GRPCOptions `yaml:"grpcOptions"`
	TLSCACerts  TLSCACerts  `yaml:"tlsCACerts"`
}

// Peer represents a peer node.
type Peer struct {
	URL         string      `yaml:"url"`
	GRPCOptions GRPCOptions `yaml:"grpcOptions"`
	TLSCACerts  TLSCACerts  `yaml:"tlsCACerts"`
}

// GRPCOptions carries per-endpoint connection options. The hostname
// override is required when an endpoint is reached by IP or NAT'd name
// that differs from its TLS certificate subject.
type GRPCOptions struct {
	SSLTargetNameOverride string `yaml:"ssl-target-name-override,omitempty"`
	AllowInsecure         bool   `yaml:"allow-insecure,omitempty"`
}

// TLSCACerts supplies a trust root either inline or by file path.
type TLSCACerts struct {
	PEM  string `yaml:"pem,omitempty"`
	Path string `yaml:"path,omitempty"`
}

// Resolve returns the trust root PEM bytes, reading from disk when only a
// path was supplied.
func (t TLSCACerts) Resolve() ([]byte, error) {
	if t.PEM != "" {
		return []byte(t.PEM), nil
	}
	if t.Path == "" {
		return nil, apperrors.NewConfigError("tlsCACerts has neither pem nor path", nil, nil)
	}
	data, err := os.ReadFile(t.Path)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to read TLS CA certificate file", err, map[string]interface{}{
			"path": t.Path,
		})
	}
	return data, nil
}

// Empty reports whether no trust root was configured at all.
func (t TLSCACerts) Empty() bool {
	return t.PEM == "" && t.Path == ""
}

// CertificateAuthority represents a CA server used for enrollment.
type CertificateAuthority struct {
	URL        string     `yaml:"url"`
	CAName     string     `yaml:"caName"`
	Registrar  Registrar  `yaml:"registrar"`
	TLSCACerts TLSCACerts `yaml:"tlsCACerts"`
}

// Registrar represents CA registrar information
type Registrar struct {
	EnrollID     string `yaml:"enrollId"`
	EnrollSecret string `yaml:"enrollSecret"`
}

// Channel represents a channel configuration
type Channel struct {
	Orderers []string              `yaml:"orderers"`
	Peers    map[string]PeerConfig `yaml:"peers"`
}

// PeerConfig represents peer configuration within a channel
type PeerConfig struct {
	Discover       bool `yaml:"discover"`
	EndorsingPeer  bool `yaml:"endorsingPeer"`
	ChaincodeQuery bool `yaml:"chaincodeQuery"`
	LedgerQuery    bool `yaml:"ledgerQuery"`
	EventSource    bool `yaml:"eventSource"`
}

// OrganizationByMSPID finds the organization entry carrying the given MSP
// id. Lookup is strict: no fallback to any other entry.
func (c *NetworkConfig) OrganizationByMSPID(mspID string) (string, *Organization, error) {
	for name, org := range c.Organizations {
		if org.MSPID == mspID {
			return name, &org, nil
		}
	}
	return "", nil, apperrors.NewNotFoundError("organization not found in connection profile", map[string]interface{}{
		"mspId": mspID,
	})
}

// Validate enforces referential integrity of the profile: every peer and
// orderer referenced by an organization must exist in the top-level maps,
// and every CA must supply a resolvable trust root.
func (c *NetworkConfig) Validate() error {
	for orgName, org := range c.Organizations {
		for _, peerName := range org.Peers {
			if _, ok := c.Peers[peerName]; !ok {
				return apperrors.NewConfigError("organization references unknown peer", nil, map[string]interface{}{
					"organization": orgName,
					"peer":         peerName,
				})
			}
		}
		for _, ordererName := range org.Orderers {
			if _, ok := c.Orderers[ordererName]; !ok {
				return apperrors.NewConfigError("organization references unknown orderer", nil, map[string]interface{}{
					"organization": orgName,
					"orderer":      ordererName,
				})
			}
		}
		for _, caName := range org.CertificateAuthorities {
			ca, ok := c.CertificateAuthorities[caName]
			if !ok {
				return apperrors.NewConfigError("organization references unknown certificate authority", nil, map[string]interface{}{
					"organization":         orgName,
					"certificateAuthority": caName,
				})
			}
			if ca.TLSCACerts.Empty() {
				return apperrors.NewConfigError("certificate authority has no TLS trust root", nil, map[string]interface{}{
					"certificateAuthority": caName,
				})
			}
		}
	}
	return nil
}
