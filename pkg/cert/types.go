package cert

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"
)

// Certificate errors.
var (
	ErrInvalidPEM      = errors.New("invalid PEM data")
	ErrInvalidKey      = errors.New("invalid private key")
	ErrInvalidCert     = errors.New("invalid certificate")
	ErrIncompletePair  = errors.New("certificate and key files must be set together")
	ErrCertExpired     = errors.New("certificate has expired")
	ErrCertNotYetValid = errors.New("certificate is not yet valid")
	ErrInvalidChain    = errors.New("invalid certificate chain")
)

// DefaultValidity is the lifetime of generated certificates.
const DefaultValidity = 365 * 24 * time.Hour

// RenewalWindow is how long before expiry a certificate should be replaced.
const RenewalWindow = 30 * 24 * time.Hour

// KeyPair is a certificate with its private key.
type KeyPair struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// TLSCertificate returns the pair in the form crypto/tls expects.
func (kp *KeyPair) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{kp.Certificate.Raw},
		PrivateKey:  kp.PrivateKey,
		Leaf:        kp.Certificate,
	}
}

// ExpiresAt returns when the certificate stops being valid.
func (kp *KeyPair) ExpiresAt() time.Time {
	return kp.Certificate.NotAfter
}

// NeedsRenewal reports whether now is inside the renewal window.
func (kp *KeyPair) NeedsRenewal(now time.Time) bool {
	return !now.Before(kp.Certificate.NotAfter.Add(-RenewalWindow))
}

// CertPool returns a pool trusting only this certificate.
func (kp *KeyPair) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(kp.Certificate)
	return pool
}
