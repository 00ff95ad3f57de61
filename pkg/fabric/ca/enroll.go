package ca

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ledgermart/ledgermart/pkg/certutils"
	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/fabric/wallet"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

const (
	enrollEndpoint = "/api/v1/enroll"
	// Key files produced by fabric CA tooling carry this suffix.
	privateKeySuffix = "_sk"
)

// EnrollmentRequest describes one enrollment against a certificate
// authority. The secret is one-time in most CA deployments, so the service
// never retries on its own.
type EnrollmentRequest struct {
	CAURL        string
	CAName       string
	TLSRootPEM   []byte
	EnrollmentID string
	Secret       string
	MSPID        string
	Profile      string
	Hosts        []string
	// SkipTLSVerify disables CA hostname verification. Only for local and
	// development topologies; production profiles must carry a trust root.
	SkipTLSVerify bool
}

// EnrollmentService obtains identities from a certificate authority or
// imports pre-issued identity bundles from disk.
type EnrollmentService struct {
	logger  *logger.Logger
	timeout time.Duration
}

// NewEnrollmentService creates an EnrollmentService. timeout bounds each
// CA round-trip when the caller's context carries no earlier deadline.
func NewEnrollmentService(logger *logger.Logger, timeout time.Duration) *EnrollmentService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EnrollmentService{logger: logger, timeout: timeout}
}

type enrollmentRequestBody struct {
	CertificateRequest string `json:"certificate_request"`
	CAName             string `json:"caname,omitempty"`
	Profile            string `json:"profile,omitempty"`
}

type enrollmentResponseBody struct {
	Success bool `json:"success"`
	Result  struct {
		Cert string `json:"Cert"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Enroll generates a fresh P-256 key, sends a CSR to the CA over TLS and
// returns the issued identity. Credential rejection surfaces as an
// EnrollmentError; transport failures as ConnectionError or TimeoutError.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollmentRequest) (*wallet.Identity, error) {
	if req.EnrollmentID == "" || req.Secret == "" {
		return nil, apperrors.NewValidationError("enrollment id and secret are required", nil)
	}
	if req.MSPID == "" {
		return nil, apperrors.NewValidationError("msp id is required", nil)
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to generate enrollment key", err, nil)
	}
	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to marshal private key", err, nil)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: privateKeyBytes,
	})

	csrPEM, err := buildCSR(privateKey, req.EnrollmentID, req.Hosts)
	if err != nil {
		return nil, err
	}

	httpClient, err := s.httpClientFor(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(enrollmentRequestBody{
		CertificateRequest: string(csrPEM),
		CAName:             req.CAName,
		Profile:            req.Profile,
	})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode enrollment request", err, nil)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	url := strings.TrimSuffix(req.CAURL, "/") + enrollEndpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create enrollment request", err, nil)
	}
	httpReq.SetBasicAuth(req.EnrollmentID, req.Secret)
	httpReq.Header.Set("Content-Type", "application/json")

	s.logger.Info("enrolling identity",
		"ca", req.CAURL,
		"enrollmentId", req.EnrollmentID,
		"mspId", req.MSPID,
	)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewTimeoutError("enrollment deadline exceeded", err, map[string]interface{}{
				"ca": req.CAURL,
			})
		}
		return nil, apperrors.NewConnectionError("failed to reach certificate authority", err, map[string]interface{}{
			"ca": req.CAURL,
		})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewConnectionError("failed to read CA response", err, map[string]interface{}{
			"ca": req.CAURL,
		})
	}

	var enrollResp enrollmentResponseBody
	if err := json.Unmarshal(respBody, &enrollResp); err != nil {
		return nil, apperrors.NewEnrollmentError("CA returned an unparsable response", err, map[string]interface{}{
			"ca":     req.CAURL,
			"status": resp.StatusCode,
		})
	}
	if resp.StatusCode >= 400 || !enrollResp.Success {
		msg := "certificate authority rejected enrollment"
		if len(enrollResp.Errors) > 0 {
			msg = enrollResp.Errors[0].Message
		}
		return nil, apperrors.NewEnrollmentError(msg, nil, map[string]interface{}{
			"ca":           req.CAURL,
			"enrollmentId": req.EnrollmentID,
			"status":       resp.StatusCode,
		})
	}

	certPEM, err := base64.StdEncoding.DecodeString(enrollResp.Result.Cert)
	if err != nil {
		return nil, apperrors.NewEnrollmentError("CA returned an undecodable certificate", err, map[string]interface{}{
			"ca": req.CAURL,
		})
	}
	if _, err := certutils.ParseX509Certificate(certPEM); err != nil {
		return nil, apperrors.NewEnrollmentError("CA returned an unparsable certificate", err, map[string]interface{}{
			"ca": req.CAURL,
		})
	}

	return &wallet.Identity{
		Label:       req.EnrollmentID,
		MSPID:       req.MSPID,
		Certificate: string(certPEM),
		PrivateKey:  string(privatePEM),
	}, nil
}

func (s *EnrollmentService) httpClientFor(req EnrollmentRequest) (*http.Client, error) {
	tlsConfig := &tls.Config{}
	if req.SkipTLSVerify {
		s.logger.Warn("CA hostname verification disabled; local/dev topologies only", "ca", req.CAURL)
		tlsConfig.InsecureSkipVerify = true
	} else if len(req.TLSRootPEM) > 0 {
		pool, err := certutils.NewCertPool(req.TLSRootPEM)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}, nil
}

func buildCSR(key *ecdsa.PrivateKey, enrollmentID string, hosts []string) ([]byte, error) {
	template := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: enrollmentID},
		SignatureAlgorithm: x509.ECDSAWithSHA256,
		DNSNames:           hosts,
	}
	csrDER, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create certificate request", err, nil)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE REQUEST",
		Bytes: csrDER,
	}), nil
}

// ImportFromDisk reads a pre-issued identity bundle: a certificate file
// and the single private-key file inside keyDir. Zero or more than one
// candidate key file is an error; the ambiguity is never resolved by
// picking an arbitrary file.
func (s *EnrollmentService) ImportFromDisk(certPath, keyDir, mspID, label string) (*wallet.Identity, error) {
	certPEM, err := os.ReadFile(filepath.Clean(certPath))
	if err != nil {
		return nil, apperrors.NewNotFoundError("failed to read certificate file", map[string]interface{}{
			"path": certPath,
		})
	}

	entries, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, apperrors.NewNotFoundError("failed to read key directory", map[string]interface{}{
			"path": keyDir,
		})
	}
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), privateKeySuffix) {
			candidates = append(candidates, entry.Name())
		}
	}
	if len(candidates) != 1 {
		return nil, apperrors.NewNotFoundError(
			fmt.Sprintf("expected exactly one private key file, found %d", len(candidates)),
			map[string]interface{}{
				"path":       keyDir,
				"candidates": candidates,
			})
	}

	keyPEM, err := os.ReadFile(filepath.Join(keyDir, candidates[0]))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read private key %s", candidates[0])
	}

	return &wallet.Identity{
		Label:       label,
		MSPID:       mspID,
		Certificate: string(certPEM),
		PrivateKey:  string(keyPEM),
	}, nil
}
