package cert

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"
)

// Files names the PEM files of a TLS client.
type Files struct {
	// CAFile holds the roots the server certificate must chain to.
	// Empty uses the system roots.
	CAFile string

	// CertFile and KeyFile hold the client certificate, if any.
	CertFile string
	KeyFile  string

	// ServerName overrides the name checked against the server certificate.
	ServerName string

	// Insecure skips server verification.
	Insecure bool
}

// ClientTLSConfig builds a TLS 1.2+ client config from files.
func ClientTLSConfig(files Files) (*tls.Config, error) {
	if (files.CertFile == "") != (files.KeyFile == "") {
		return nil, ErrIncompletePair
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         files.ServerName,
		InsecureSkipVerify: files.Insecure, //nolint:gosec // opt-in for test servers
	}
	if files.CAFile != "" {
		pool, err := ReadCertPool(files.CAFile)
		if err != nil {
			return nil, fmt.Errorf("ca file: %w", err)
		}
		cfg.RootCAs = pool
	}
	if files.CertFile != "" {
		kp, err := ReadFiles(files.CertFile, files.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("client certificate: %w", err)
		}
		if err := CheckValidity(kp.Certificate, time.Now()); err != nil {
			return nil, fmt.Errorf("client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{kp.TLSCertificate()}
	}
	return cfg, nil
}

// CheckValidity checks the validity period of c at now.
func CheckValidity(c *x509.Certificate, now time.Time) error {
	if c == nil {
		return ErrInvalidCert
	}
	if now.Before(c.NotBefore) {
		return ErrCertNotYetValid
	}
	if now.After(c.NotAfter) {
		return ErrCertExpired
	}
	return nil
}

// Verify checks that c chains to one of roots and is valid at now.
func Verify(c *x509.Certificate, roots *x509.CertPool, now time.Time) error {
	if err := CheckValidity(c, now); err != nil {
		return err
	}
	opts := x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: now,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := c.Verify(opts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChain, err)
	}
	return nil
}
