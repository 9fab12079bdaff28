// Package credentials parses device connection strings and mints the
// tokens a device presents to the management server.
//
// A connection string is a semicolon separated list of key=value pairs:
//
//	HostName=dm.example.com;DeviceId=dev-1;SharedAccessKey=c2VjcmV0
//
// HostName and DeviceId are required. HostName may carry a port.
// SharedAccessKey is base64 and optional; when present the device
// authenticates with a JWT signed by the key before registering, and the
// DTLS transport uses it as the pre-shared key.
package credentials

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Connection string keys.
const (
	KeyHostName        = "HostName"
	KeyDeviceID        = "DeviceId"
	KeySharedAccessKey = "SharedAccessKey"
	KeyEndpoint        = "Endpoint"
)

// DefaultTokenTTL is the lifetime of a minted token.
const DefaultTokenTTL = 10 * time.Minute

// Credential errors.
var (
	ErrMalformed  = errors.New("malformed connection string")
	ErrMissingKey = errors.New("connection string has no shared access key")
)

// Credentials are the parsed contents of a connection string.
type Credentials struct {
	HostName string
	DeviceID string

	// Endpoint is the registration endpoint name. It defaults to DeviceID.
	Endpoint string

	// Key is the decoded shared access key, nil when absent.
	Key []byte
}

// Parse parses a connection string.
func Parse(s string) (*Credentials, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}

	fields := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q is not key=value", ErrMalformed, part)
		}
		if _, dup := fields[key]; dup {
			return nil, fmt.Errorf("%w: %s given twice", ErrMalformed, key)
		}
		fields[key] = value
	}

	c := &Credentials{
		HostName: fields[KeyHostName],
		DeviceID: fields[KeyDeviceID],
		Endpoint: fields[KeyEndpoint],
	}
	if c.HostName == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrMalformed, KeyHostName)
	}
	if c.DeviceID == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrMalformed, KeyDeviceID)
	}
	if c.Endpoint == "" {
		c.Endpoint = c.DeviceID
	}

	if raw, ok := fields[KeySharedAccessKey]; ok {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil || len(key) == 0 {
			return nil, fmt.Errorf("%w: %s is not base64", ErrMalformed, KeySharedAccessKey)
		}
		c.Key = key
	}
	return c, nil
}

// HasKey reports whether a shared access key was given.
func (c *Credentials) HasKey() bool { return len(c.Key) > 0 }

// Address returns HostName as host:port, adding defaultPort when the host
// has none.
func (c *Credentials) Address(defaultPort int) string {
	if _, _, err := net.SplitHostPort(c.HostName); err == nil {
		return c.HostName
	}
	return net.JoinHostPort(c.HostName, strconv.Itoa(defaultPort))
}

// Token mints an HS256 JWT for the device, valid for ttl from now.
func (c *Credentials) Token(now time.Time, ttl time.Duration) (string, error) {
	if !c.HasKey() {
		return "", ErrMissingKey
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := jwt.RegisteredClaims{
		Subject:   c.DeviceID,
		Audience:  jwt.ClaimStrings{c.HostName},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a token minted by Token and returns its claims.
func (c *Credentials) Verify(token string, now time.Time) (*jwt.RegisteredClaims, error) {
	if !c.HasKey() {
		return nil, ErrMissingKey
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.Key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(c.DeviceID),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// String renders the credentials with the key redacted.
func (c *Credentials) String() string {
	key := ""
	if c.HasKey() {
		key = ";" + KeySharedAccessKey + "=***"
	}
	return fmt.Sprintf("%s=%s;%s=%s%s", KeyHostName, c.HostName, KeyDeviceID, c.DeviceID, key)
}

// WithHostName returns connection string s with its HostName set to host,
// adding the field when s has none.
func WithHostName(s, host string) string {
	parts := strings.Split(strings.TrimSpace(s), ";")
	out := make([]string, 0, len(parts)+1)
	out = append(out, KeyHostName+"="+host)
	for _, part := range parts {
		if part == "" {
			continue
		}
		if key, _, _ := strings.Cut(part, "="); key == KeyHostName {
			continue
		}
		out = append(out, part)
	}
	return strings.Join(out, ";")
}
