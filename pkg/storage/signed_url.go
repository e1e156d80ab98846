package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// BundleURLSigner mints and validates signed download tokens for archived
// submission bundles. A token ties a package id to the bundle path it may
// fetch, so a leaked URL cannot be replayed against another package.
type BundleURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewBundleURLSigner constructs a signer with the provided secret and TTL.
func NewBundleURLSigner(secret string, ttl time.Duration) *BundleURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &BundleURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate returns a signed token for downloading one package's bundle.
func (s *BundleURLSigner) Generate(packageID, bundlePath string) (string, time.Time, error) {
	if packageID == "" || bundlePath == "" {
		return "", time.Time{}, fmt.Errorf("packageID and bundlePath required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(bundlePath))
	payload := fmt.Sprintf("%s|%d|%s", packageID, expiresAt.Unix(), encodedPath)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	token := strings.Join([]string{packageID, fmt.Sprintf("%d", expiresAt.Unix()), encodedPath, signature}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the package id and bundle path it
// grants. When allowExpired is true the timestamp check is skipped; the
// bundle retention sweep uses that to resolve paths from stale tokens.
func (s *BundleURLSigner) Parse(token string, allowExpired bool) (packageID, bundlePath string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("invalid token format")
	}
	packageID = parts[0]
	ts := parts[1]
	encodedPath := parts[2]
	signature := parts[3]

	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode path: %w", err)
	}

	expUnix, err := parseUnix(ts)
	if err != nil {
		return "", "", time.Time{}, err
	}
	expiresAt = time.Unix(expUnix, 0)

	payload := fmt.Sprintf("%s|%s|%s", packageID, ts, encodedPath)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	if !allowExpired && time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}
	return packageID, string(rawPath), expiresAt, nil
}

func parseUnix(raw string) (int64, error) {
	var ts int64
	_, err := fmt.Sscanf(raw, "%d", &ts)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp")
	}
	return ts, nil
}
