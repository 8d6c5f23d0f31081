package signature

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
)

// SecretPrefix marks a webhook signing secret.
const SecretPrefix = "whsec_"

// ErrEmptySecret is returned when a signing secret is empty.
var ErrEmptySecret = errors.New("signature: empty secret")

// GenerateSecret creates a random signing secret.
// Format: "whsec_" + base64 of 24 random bytes (38 characters total).
func GenerateSecret() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic("signature: failed to generate random secret: " + err.Error())
	}
	return SecretPrefix + base64.StdEncoding.EncodeToString(b)
}

// DecodeSecret returns the HMAC key for secret. The "whsec_" prefix is
// optional; a body that is not valid base64 is used as raw bytes.
func DecodeSecret(secret string) ([]byte, error) {
	body := strings.TrimPrefix(secret, SecretPrefix)
	if body == "" {
		return nil, ErrEmptySecret
	}
	if key, err := base64.StdEncoding.DecodeString(body); err == nil {
		return key, nil
	}
	return []byte(body), nil
}
