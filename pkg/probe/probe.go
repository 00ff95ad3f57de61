package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ledgermart/ledgermart/pkg/certutils"
	"github.com/ledgermart/ledgermart/pkg/fabric/networkconfig"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

// DefaultDeadline bounds each individual endpoint check.
const DefaultDeadline = 5 * time.Second

// Outcome classifies a connectivity check result.
type Outcome string

const (
	OutcomeOK          Outcome = "OK"
	OutcomeUnreachable Outcome = "UNREACHABLE"
	OutcomeTLSMismatch Outcome = "TLS_MISMATCH"
	OutcomeTimeout     Outcome = "TIMEOUT"
	OutcomeBadConfig   Outcome = "BAD_CONFIG"
)

// Result is the outcome of probing one peer or orderer.
type Result struct {
	Name    string        `json:"name"`
	Kind    string        `json:"kind"` // "peer" or "orderer"
	Address string        `json:"address"`
	Outcome Outcome       `json:"outcome"`
	Detail  string        `json:"detail,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Prober validates TLS reachability of every peer and orderer in a
// connection profile before the endpoints are used in production.
type Prober struct {
	logger   *logger.Logger
	deadline time.Duration
}

func NewProber(logger *logger.Logger, deadline time.Duration) *Prober {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Prober{logger: logger, deadline: deadline}
}

type target struct {
	name          string
	kind          string
	address       string
	serverName    string
	allowInsecure bool
	trustRoot     networkconfig.TLSCACerts
}

// Run probes all endpoints concurrently and returns one result per
// endpoint, sorted by kind then name.
func (p *Prober) Run(ctx context.Context, profile *networkconfig.NetworkConfig) []Result {
	var targets []target
	for name, peer := range profile.Peers {
		targets = append(targets, target{
			name:          name,
			kind:          "peer",
			address:       stripScheme(peer.URL),
			serverName:    peer.GRPCOptions.SSLTargetNameOverride,
			allowInsecure: peer.GRPCOptions.AllowInsecure,
			trustRoot:     peer.TLSCACerts,
		})
	}
	for name, orderer := range profile.Orderers {
		targets = append(targets, target{
			name:          name,
			kind:          "orderer",
			address:       stripScheme(orderer.URL),
			serverName:    orderer.GRPCOptions.SSLTargetNameOverride,
			allowInsecure: orderer.GRPCOptions.AllowInsecure,
			trustRoot:     orderer.TLSCACerts,
		})
	}

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, tgt := range targets {
		wg.Add(1)
		go func(i int, tgt target) {
			defer wg.Done()
			results[i] = p.probe(ctx, tgt)
		}(i, tgt)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Kind != results[j].Kind {
			return results[i].Kind < results[j].Kind
		}
		return results[i].Name < results[j].Name
	})
	return results
}

func (p *Prober) probe(ctx context.Context, tgt target) Result {
	result := Result{Name: tgt.name, Kind: tgt.kind, Address: tgt.address}
	start := time.Now()
	defer func() {
		result.Elapsed = time.Since(start)
		p.logger.Info("probe finished",
			"kind", tgt.kind,
			"endpoint", tgt.name,
			"outcome", result.Outcome,
			"elapsed", result.Elapsed,
		)
	}()

	tlsConfig := &tls.Config{}
	if tgt.allowInsecure {
		p.logger.Warn("probing without certificate verification; local/dev topologies only",
			"kind", tgt.kind,
			"endpoint", tgt.name,
		)
		tlsConfig.InsecureSkipVerify = true
	} else {
		trustRoot, err := tgt.trustRoot.Resolve()
		if err != nil {
			result.Outcome = OutcomeBadConfig
			result.Detail = err.Error()
			return result
		}
		pool, err := certutils.NewCertPool(trustRoot)
		if err != nil {
			result.Outcome = OutcomeBadConfig
			result.Detail = err.Error()
			return result
		}
		tlsConfig.RootCAs = pool
	}
	if tgt.serverName != "" {
		tlsConfig.ServerName = tgt.serverName
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    tlsConfig,
	}
	conn, err := dialer.DialContext(probeCtx, "tcp", tgt.address)
	if err != nil {
		result.Outcome = Classify(err)
		result.Detail = err.Error()
		return result
	}
	conn.Close()

	result.Outcome = OutcomeOK
	return result
}

// Classify maps a dial error to a probe outcome: deadline exhaustion,
// network unreachability, or a TLS identity mismatch.
func Classify(err error) Outcome {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}

	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var certInvalid x509.CertificateInvalidError
	var recordHeader tls.RecordHeaderError
	var certVerify *tls.CertificateVerificationError
	if errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &certInvalid) ||
		errors.As(err, &recordHeader) ||
		errors.As(err, &certVerify) {
		return OutcomeTLSMismatch
	}

	return OutcomeUnreachable
}

func stripScheme(url string) string {
	url = strings.Replace(url, "grpcs://", "", 1)
	return strings.Replace(url, "grpc://", "", 1)
}
