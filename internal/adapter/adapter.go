package adapter

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidCA is returned when the CA file holds no PEM certificates.
var ErrInvalidCA = errors.New("failed to parse CA certificate")

// A MakeTLSConfig returns [*tls.Config] for broker connections.
//
// All args are the filepaths. The client key pair is optional; it is
// loaded only when both cert and key are set.
func MakeTLSConfig(ca, cert, key string) (*tls.Config, error) {
	const op = "adapter.MakeTLSConfig"

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if ca != "" {
		caCert, err := os.ReadFile(ca)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: failed to read CA certificate file: %w", op, err,
			)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCA)
		}
		cfg.RootCAs = caCertPool
	}

	if cert != "" || key != "" {
		clientCert, err := tls.LoadX509KeyPair(cert, key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		cfg.Certificates = []tls.Certificate{clientCert}
	}

	return cfg, nil
}
