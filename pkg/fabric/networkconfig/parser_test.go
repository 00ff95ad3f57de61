package networkconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
)

const singleDocYAML = `
name: marketplace-network
version: "1.0"
client:
  organization: Marketplace
organizations:
  Marketplace:
    mspid: ECommercePlatformOrgMSP
    peers:
      - peer0.marketplace.example.com
    certificateAuthorities:
      - ca.marketplace.example.com
orderers:
  orderer.example.com:
    url: grpcs://localhost:7050
    grpcOptions:
      ssl-target-name-override: orderer.example.com
    tlsCACerts:
      pem: |
        -----BEGIN CERTIFICATE-----
        orderer-root
        -----END CERTIFICATE-----
peers:
  peer0.marketplace.example.com:
    url: grpcs://localhost:7051
    grpcOptions:
      ssl-target-name-override: peer0.marketplace.example.com
    tlsCACerts:
      pem: |
        -----BEGIN CERTIFICATE-----
        peer-root
        -----END CERTIFICATE-----
certificateAuthorities:
  ca.marketplace.example.com:
    url: https://localhost:7054
    caName: ca-marketplace
    tlsCACerts:
      pem: |
        -----BEGIN CERTIFICATE-----
        ca-root
        -----END CERTIFICATE-----
channels: {}
`

func TestLoadFromFile(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "connection-profile.yaml")

	err := os.WriteFile(testFile, []byte(singleDocYAML), 0644)
	require.NoError(t, err)

	config, err := LoadFromFile(testFile)
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, "marketplace-network", config.Name)
	assert.Equal(t, "Marketplace", config.Client.Organization)
	assert.Equal(t, "ECommercePlatformOrgMSP", config.Organizations["Marketplace"].MSPID)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ConfigError))
}

func TestLoadMultiDocumentSelectsOrganizations(t *testing.T) {
	// Legacy profile exports prepend a client-settings document without
	// an organizations key. Only the document carrying organizations is
	// authoritative.
	multiDoc := `
name: client-settings-only
version: "1.0"
client:
  organization: Marketplace
---
` + singleDocYAML

	config, err := LoadFromBytes([]byte(multiDoc))
	require.NoError(t, err)
	assert.Equal(t, "marketplace-network", config.Name)
	assert.Contains(t, config.Organizations, "Marketplace")
}

func TestLoadMultipleOrganizationsDocumentsRejected(t *testing.T) {
	// Two documents both claiming organizations leave no unambiguous
	// selection.
	multiDoc := singleDocYAML + "\n---\n" + singleDocYAML

	_, err := LoadFromBytes([]byte(multiDoc))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ConfigError))
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestLoadNoOrganizationsDocument(t *testing.T) {
	noOrgs := `
name: settings
version: "1.0"
---
name: more-settings
version: "2.0"
`
	_, err := LoadFromBytes([]byte(noOrgs))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ConfigError))
}

func TestLoadUnparsableDocument(t *testing.T) {
	_, err := LoadFromBytes([]byte("organizations: [unbalanced"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ConfigError))
}

func TestValidateDanglingPeerReference(t *testing.T) {
	config, err := LoadFromBytes([]byte(singleDocYAML))
	require.NoError(t, err)

	org := config.Organizations["Marketplace"]
	org.Peers = append(org.Peers, "peer9.missing.example.com")
	config.Organizations["Marketplace"] = org

	err = config.Validate()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ConfigError))
}

func TestValidateCAWithoutTrustRoot(t *testing.T) {
	config, err := LoadFromBytes([]byte(singleDocYAML))
	require.NoError(t, err)

	ca := config.CertificateAuthorities["ca.marketplace.example.com"]
	ca.TLSCACerts = TLSCACerts{}
	config.CertificateAuthorities["ca.marketplace.example.com"] = ca

	err = config.Validate()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ConfigError))
}

func TestTLSCACertsResolveFromPath(t *testing.T) {
	tempDir := t.TempDir()
	certFile := filepath.Join(tempDir, "tlsca.pem")
	pem := "-----BEGIN CERTIFICATE-----\nfrom-disk\n-----END CERTIFICATE-----\n"
	require.NoError(t, os.WriteFile(certFile, []byte(pem), 0644))

	resolved, err := TLSCACerts{Path: certFile}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, pem, string(resolved))
}

func TestOrganizationByMSPIDStrictLookup(t *testing.T) {
	config, err := LoadFromBytes([]byte(singleDocYAML))
	require.NoError(t, err)

	name, org, err := config.OrganizationByMSPID("ECommercePlatformOrgMSP")
	require.NoError(t, err)
	assert.Equal(t, "Marketplace", name)
	assert.Len(t, org.Peers, 1)

	_, _, err = config.OrganizationByMSPID("UnknownMSP")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.NotFoundError))
}
