// Package signature provides HMAC-SHA256 webhook signing and verification
// compatible with the Svix scheme used by Clerk.
//
// The signed content is "{msgID}.{timestamp}.{payload}" and the key is the
// base64 portion of a "whsec_" secret. Signature headers carry one or more
// space-separated "v1,<base64>" entries so that secrets can be rotated.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
)

// Version is the only signature scheme version this package produces.
const Version = "v1"

// Sign returns the "v1,<base64>" signature for the given delivery.
func Sign(msgID string, timestamp int64, payload []byte, secret string) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return encode(compute(key, msgID, timestamp, payload)), nil
}

func encode(mac []byte) string {
	return Version + "," + base64.StdEncoding.EncodeToString(mac)
}

func compute(key []byte, msgID string, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msgID))
	mac.Write([]byte{'.'})
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return mac.Sum(nil)
}
