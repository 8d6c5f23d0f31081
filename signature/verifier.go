package signature

import (
	"crypto/hmac"
	"strings"
)

// Verify reports whether any entry in the space-separated header equals the
// expected "v1,<base64>" signature. Entries are compared in their encoded
// form, in constant time, so a header is accepted only when it carries the
// canonical encoding of the expected MAC.
func Verify(msgID string, timestamp int64, payload []byte, secret, header string) (bool, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return false, err
	}
	expected := []byte(encode(compute(key, msgID, timestamp, payload)))

	for _, entry := range strings.Fields(header) {
		if !strings.HasPrefix(entry, Version+",") {
			continue
		}
		if hmac.Equal(expected, []byte(entry)) {
			return true, nil
		}
	}
	return false, nil
}
