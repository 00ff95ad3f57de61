package certutils

import (
	"crypto/x509"
	"encoding/pem"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
)

func EncodeX509Certificate(crt *x509.Certificate) []byte {
	pemPk := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: crt.Raw,
	})
	return pemPk
}

func ParseX509Certificate(contents []byte) (*x509.Certificate, error) {
	if len(contents) == 0 {
		return nil, apperrors.NewConfigError("certificate pem is empty", nil, nil)
	}
	block, _ := pem.Decode(contents)
	if block == nil {
		return nil, apperrors.NewConfigError("failed to decode PEM block", nil, nil)
	}
	crt, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to parse certificate", err, nil)
	}
	return crt, nil
}

// NewCertPool builds a pool from one or more PEM-encoded certificates.
func NewCertPool(pemBytes []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, apperrors.NewConfigError("trust root contains no valid certificate", nil, nil)
	}
	return pool, nil
}
