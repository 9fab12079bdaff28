package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGenerateSelfSigned(t *testing.T) {
	kp, err := GenerateSelfSigned([]string{"dm.example.com", "127.0.0.1"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}

	c := kp.Certificate
	if c.Subject.CommonName != "dm.example.com" {
		t.Errorf("CommonName = %q", c.Subject.CommonName)
	}
	if len(c.DNSNames) != 1 || c.DNSNames[0] != "dm.example.com" {
		t.Errorf("DNSNames = %v", c.DNSNames)
	}
	if len(c.IPAddresses) != 1 || c.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IPAddresses = %v", c.IPAddresses)
	}
	if kp.PrivateKey.Curve.Params().Name != "P-256" {
		t.Errorf("Expected P-256 curve, got %s", kp.PrivateKey.Curve.Params().Name)
	}
	if err := c.VerifyHostname("dm.example.com"); err != nil {
		t.Errorf("VerifyHostname: %v", err)
	}
	if err := Verify(c, kp.CertPool(), time.Now()); err != nil {
		t.Errorf("Verify against itself: %v", err)
	}
}

func TestGenerateSelfSignedDefaultValidity(t *testing.T) {
	kp, err := GenerateSelfSigned(nil, 0)
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}
	got := kp.ExpiresAt().Sub(kp.Certificate.NotBefore)
	if got < DefaultValidity || got > DefaultValidity+2*time.Minute {
		t.Errorf("validity = %v, want about %v", got, DefaultValidity)
	}
}

func TestNeedsRenewal(t *testing.T) {
	kp, err := GenerateSelfSigned([]string{"a"}, 60*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if kp.NeedsRenewal(now) {
		t.Error("fresh certificate should not need renewal")
	}
	if !kp.NeedsRenewal(now.Add(45 * 24 * time.Hour)) {
		t.Error("certificate inside the renewal window should need renewal")
	}
}

func TestCheckValidity(t *testing.T) {
	kp, err := GenerateSelfSigned([]string{"a"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()

	if err := CheckValidity(kp.Certificate, now); err != nil {
		t.Errorf("CheckValidity(now) = %v", err)
	}
	if err := CheckValidity(kp.Certificate, now.Add(2*time.Hour)); !errors.Is(err, ErrCertExpired) {
		t.Errorf("CheckValidity(later) = %v, want ErrCertExpired", err)
	}
	if err := CheckValidity(kp.Certificate, now.Add(-time.Hour)); !errors.Is(err, ErrCertNotYetValid) {
		t.Errorf("CheckValidity(earlier) = %v, want ErrCertNotYetValid", err)
	}
	if err := CheckValidity(nil, now); !errors.Is(err, ErrInvalidCert) {
		t.Errorf("CheckValidity(nil) = %v, want ErrInvalidCert", err)
	}
}

func TestVerifyWrongRoot(t *testing.T) {
	kp1, _ := GenerateSelfSigned([]string{"a"}, time.Hour)
	kp2, _ := GenerateSelfSigned([]string{"b"}, time.Hour)

	if err := Verify(kp1.Certificate, kp2.CertPool(), time.Now()); !errors.Is(err, ErrInvalidChain) {
		t.Errorf("Verify() = %v, want ErrInvalidChain", err)
	}
}

func TestFilesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "client.crt")
	keyPath := filepath.Join(dir, "client.key")

	kp, err := GenerateSelfSigned([]string{"dev-1"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteFiles(certPath, keyPath, kp); err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key file permissions = %o, want 600", perm)
	}

	loaded, err := ReadFiles(certPath, keyPath)
	if err != nil {
		t.Fatalf("ReadFiles: %v", err)
	}
	if !loaded.Certificate.Equal(kp.Certificate) {
		t.Error("certificate changed on disk")
	}
	if !loaded.PrivateKey.Equal(kp.PrivateKey) {
		t.Error("key changed on disk")
	}
}

func TestReadFilesMismatchedKey(t *testing.T) {
	dir := t.TempDir()
	kp1, _ := GenerateSelfSigned([]string{"a"}, time.Hour)
	kp2, _ := GenerateSelfSigned([]string{"b"}, time.Hour)

	if err := WriteFiles(filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key"), kp1); err != nil {
		t.Fatal(err)
	}
	if err := WriteFiles(filepath.Join(dir, "b.crt"), filepath.Join(dir, "b.key"), kp2); err != nil {
		t.Fatal(err)
	}

	_, err := ReadFiles(filepath.Join(dir, "a.crt"), filepath.Join(dir, "b.key"))
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("ReadFiles() = %v, want ErrInvalidKey", err)
	}
}

func TestDecodeKeyPEMPKCS8(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	got, err := DecodeKeyPEM(data)
	if err != nil {
		t.Fatalf("DecodeKeyPEM: %v", err)
	}
	if !got.Equal(key) {
		t.Error("decoded key differs")
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := DecodeKeyPEM([]byte("not pem")); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("DecodeKeyPEM(garbage) = %v", err)
	}
	other := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte{1}})
	if _, err := DecodeKeyPEM(other); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("DecodeKeyPEM(rsa block) = %v", err)
	}
	if _, err := DecodeCertsPEM(other); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("DecodeCertsPEM(no certificates) = %v", err)
	}
}

func TestClientTLSConfig(t *testing.T) {
	dir := t.TempDir()
	ca, _ := GenerateSelfSigned([]string{"ca"}, time.Hour)
	client, _ := GenerateSelfSigned([]string{"dev-1"}, time.Hour)

	caPath := filepath.Join(dir, "ca.crt")
	if err := os.WriteFile(caPath, EncodeCertPEM(ca.Certificate), 0644); err != nil {
		t.Fatal(err)
	}
	certPath := filepath.Join(dir, "client.crt")
	keyPath := filepath.Join(dir, "client.key")
	if err := WriteFiles(certPath, keyPath, client); err != nil {
		t.Fatal(err)
	}

	cfg, err := ClientTLSConfig(Files{
		CAFile:     caPath,
		CertFile:   certPath,
		KeyFile:    keyPath,
		ServerName: "dm.example.com",
	})
	if err != nil {
		t.Fatalf("ClientTLSConfig: %v", err)
	}
	if cfg.RootCAs == nil {
		t.Error("RootCAs not set")
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(cfg.Certificates))
	}
	if cfg.ServerName != "dm.example.com" {
		t.Errorf("ServerName = %q", cfg.ServerName)
	}
	if cfg.InsecureSkipVerify {
		t.Error("verification should be on")
	}
}

func TestClientTLSConfigErrors(t *testing.T) {
	if _, err := ClientTLSConfig(Files{CertFile: "client.crt"}); !errors.Is(err, ErrIncompletePair) {
		t.Errorf("cert without key = %v, want ErrIncompletePair", err)
	}
	if _, err := ClientTLSConfig(Files{CAFile: filepath.Join(t.TempDir(), "missing.crt")}); err == nil {
		t.Error("missing CA file should fail")
	}

	cfg, err := ClientTLSConfig(Files{Insecure: true})
	if err != nil {
		t.Fatalf("ClientTLSConfig: %v", err)
	}
	if !cfg.InsecureSkipVerify || cfg.RootCAs != nil {
		t.Errorf("insecure config = %+v", cfg)
	}
}
