package probe

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermart/ledgermart/pkg/fabric/networkconfig"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

func testProfile(peerURL string, trustRoot []byte) *networkconfig.NetworkConfig {
	return &networkconfig.NetworkConfig{
		Peers: map[string]networkconfig.Peer{
			"peer0.marketplace.example.com": {
				URL:        peerURL,
				TLSCACerts: networkconfig.TLSCACerts{PEM: string(trustRoot)},
			},
		},
	}
}

func serverTrustRootPEM(t *testing.T, server *httptest.Server) []byte {
	t.Helper()
	cert := server.Certificate()
	require.NotNil(t, cert)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func TestProbeHealthyEndpoint(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	profile := testProfile(server.Listener.Addr().String(), serverTrustRootPEM(t, server))

	prober := NewProber(logger.NewDefault(), time.Second)
	results := prober.Run(context.Background(), profile)

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeOK, results[0].Outcome)
	assert.Equal(t, "peer", results[0].Kind)
}

func unrelatedTrustRootPEM(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "unrelated-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestProbeUntrustedCertificate(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	// A trust root the server's certificate does not chain to.
	profile := testProfile(server.Listener.Addr().String(), unrelatedTrustRootPEM(t))

	prober := NewProber(logger.NewDefault(), time.Second)
	results := prober.Run(context.Background(), profile)

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeTLSMismatch, results[0].Outcome)
	assert.NotEmpty(t, results[0].Detail)
}

func TestProbeAllowInsecureSkipsVerification(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	// No trust root at all; allow-insecure must carry the connection.
	profile := &networkconfig.NetworkConfig{
		Peers: map[string]networkconfig.Peer{
			"peer0.marketplace.example.com": {
				URL:         server.Listener.Addr().String(),
				GRPCOptions: networkconfig.GRPCOptions{AllowInsecure: true},
			},
		},
	}

	prober := NewProber(logger.NewDefault(), time.Second)
	results := prober.Run(context.Background(), profile)

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeOK, results[0].Outcome)
}

func TestProbeUnreachableEndpoint(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	listener.Close()

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	trustRoot := serverTrustRootPEM(t, server)
	server.Close()

	profile := testProfile(address, trustRoot)

	prober := NewProber(logger.NewDefault(), time.Second)
	results := prober.Run(context.Background(), profile)

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeUnreachable, results[0].Outcome)
}

func TestProbeTimeout(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	// Blackhole address from TEST-NET-1, never routed.
	profile := testProfile("192.0.2.1:7051", serverTrustRootPEM(t, server))

	prober := NewProber(logger.NewDefault(), 100*time.Millisecond)
	results := prober.Run(context.Background(), profile)

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeTimeout, results[0].Outcome)
}

func TestProbeBadTrustRoot(t *testing.T) {
	profile := testProfile("127.0.0.1:7051", []byte("not a certificate"))

	prober := NewProber(logger.NewDefault(), time.Second)
	results := prober.Run(context.Background(), profile)

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeBadConfig, results[0].Outcome)
}

func TestProbeCoversOrderers(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	trustRoot := serverTrustRootPEM(t, server)
	profile := testProfile(server.Listener.Addr().String(), trustRoot)
	profile.Orderers = map[string]networkconfig.Orderer{
		"orderer.example.com": {
			URL:        "grpcs://" + server.Listener.Addr().String(),
			TLSCACerts: networkconfig.TLSCACerts{PEM: string(trustRoot)},
		},
	}

	prober := NewProber(logger.NewDefault(), time.Second)
	results := prober.Run(context.Background(), profile)

	require.Len(t, results, 2)
	kinds := []string{results[0].Kind, results[1].Kind}
	assert.Equal(t, []string{"orderer", "peer"}, kinds)
	for _, result := range results {
		assert.Equal(t, OutcomeOK, result.Outcome, result.Name)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, OutcomeTLSMismatch, Classify(x509.UnknownAuthorityError{}))
	assert.Equal(t, OutcomeUnreachable, Classify(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
}
