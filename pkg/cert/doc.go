// Package cert loads and creates the X.509 material used by the TLS
// stream transport.
//
// A client verifies the server against the system roots unless a CA file
// is given. A client certificate is optional; when present, CertFile and
// KeyFile must both be set. Keys are ECDSA P-256 in SEC 1 ("EC PRIVATE
// KEY") or PKCS #8 PEM form.
//
// GenerateSelfSigned produces a throwaway certificate for local servers
// and tests.
package cert
