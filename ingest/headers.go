package ingest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/referral/signature"
)

// SignedHeaders returns the Svix headers a provider would send with body.
// It is used by the sign command and by tests that drive the webhook route.
func SignedHeaders(secret, msgID string, at time.Time, body []byte) (http.Header, error) {
	ts := at.Unix()
	sig, err := signature.Sign(msgID, ts, body, secret)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("svix-id", msgID)
	h.Set("svix-timestamp", strconv.FormatInt(ts, 10))
	h.Set("svix-signature", sig)
	return h, nil
}
