package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenMalformed = errors.New("signed url: malformed token")
	ErrTokenSignature = errors.New("signed url: invalid signature")
	ErrTokenExpired   = errors.New("signed url: token expired")
)

// SignedFile is the payload carried by a download token.
type SignedFile struct {
	OwnerID   string
	Key       string
	Filename  string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token granting download of key to whoever holds it until expiry.
func (s *SignedURLSigner) Generate(ownerID, key, filename string) (string, time.Time, error) {
	if ownerID == "" || key == "" {
		return "", time.Time{}, fmt.Errorf("owner id and key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	parts := []string{
		encode(ownerID),
		strconv.FormatInt(expiresAt.Unix(), 10),
		encode(key),
		encode(filename),
	}
	parts = append(parts, s.sign(parts))
	return strings.Join(parts, "."), expiresAt, nil
}

// Parse validates a token. allowExpired skips the expiry check.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (SignedFile, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 5 {
		return SignedFile{}, ErrTokenMalformed
	}
	if !hmac.Equal([]byte(s.sign(parts[:4])), []byte(parts[4])) {
		return SignedFile{}, ErrTokenSignature
	}

	expUnix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return SignedFile{}, ErrTokenMalformed
	}
	owner, errOwner := decode(parts[0])
	key, errKey := decode(parts[2])
	filename, errName := decode(parts[3])
	if errOwner != nil || errKey != nil || errName != nil {
		return SignedFile{}, ErrTokenMalformed
	}

	file := SignedFile{OwnerID: owner, Key: key, Filename: filename, ExpiresAt: time.Unix(expUnix, 0)}
	if !allowExpired && s.now().After(file.ExpiresAt) {
		return SignedFile{}, ErrTokenExpired
	}
	return file, nil
}

func (s *SignedURLSigner) sign(parts []string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func encode(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}

func decode(v string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(v)
	return string(raw), err
}
