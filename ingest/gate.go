// Package ingest verifies signed webhook deliveries and turns them into
// typed events.
//
// The Gate is pure: it checks headers, freshness and signature, then parses
// the body. It never touches storage, so a rejected delivery has no side
// effects and the provider's retry will be evaluated from scratch.
package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/referral/catalog"
	"github.com/xraph/referral/event"
	"github.com/xraph/referral/signature"
)

// Header names, Svix first, then the Standard Webhooks aliases.
var (
	idHeaders        = []string{"svix-id", "webhook-id"}
	timestampHeaders = []string{"svix-timestamp", "webhook-timestamp"}
	signatureHeaders = []string{"svix-signature", "webhook-signature"}
)

// DefaultTolerance is the accepted clock skew in either direction.
const DefaultTolerance = 5 * time.Minute

// Gate verifies deliveries signed with a shared secret.
type Gate struct {
	secret    string
	catalog   *catalog.Catalog
	validator *catalog.Validator
	tolerance time.Duration
	now       func() time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithTolerance sets the acceptance window.
func WithTolerance(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.tolerance = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// WithValidator shares a schema validator (and its compile cache).
func WithValidator(v *catalog.Validator) GateOption {
	return func(g *Gate) { g.validator = v }
}

// NewGate creates a Gate. A nil catalog means catalog.Default().
func NewGate(secret string, cat *catalog.Catalog, opts ...GateOption) *Gate {
	if cat == nil {
		cat = catalog.Default()
	}
	g := &Gate{
		secret:    secret,
		catalog:   cat,
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.validator == nil {
		g.validator = catalog.NewValidator()
	}
	return g
}

// Verify checks a delivery and returns the typed event. On failure the
// error is a *Rejection. raw must be the body exactly as received.
func (g *Gate) Verify(raw []byte, h http.Header) (*event.Event, error) {
	msgID := firstHeader(h, idHeaders)
	tsValue := firstHeader(h, timestampHeaders)
	sigHeader := firstHeader(h, signatureHeaders)
	if msgID == "" || tsValue == "" || sigHeader == "" {
		return nil, reject(ReasonMissingHeaders, msgID, "")
	}

	ts, err := strconv.ParseInt(tsValue, 10, 64)
	if err != nil {
		return nil, reject(ReasonStaleTimestamp, msgID, "timestamp is not a unix time")
	}
	sent := time.Unix(ts, 0)
	now := g.now()
	if skew := now.Sub(sent); skew > g.tolerance || skew < -g.tolerance {
		return nil, reject(ReasonStaleTimestamp, msgID, fmt.Sprintf("skew %s", skew.Round(time.Second)))
	}

	ok, err := signature.Verify(msgID, ts, raw, g.secret, sigHeader)
	if err != nil || !ok {
		return nil, reject(ReasonInvalidSignature, msgID, "")
	}

	evt, rej := g.parse(msgID, sent, raw)
	if rej != nil {
		return nil, rej
	}
	evt.ReceivedAt = now.UTC()
	return evt, nil
}

func (g *Gate) parse(msgID string, sent time.Time, raw []byte) (*event.Event, *Rejection) {
	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, reject(ReasonMalformedPayload, msgID, "body is not a JSON object")
	}
	if env.Type == "" {
		return nil, reject(ReasonMalformedPayload, msgID, "missing event type")
	}

	evt := &event.Event{
		DeliveryID: msgID,
		Type:       env.Type,
		Timestamp:  sent.UTC(),
		Data:       env.Data,
	}

	et, known := g.catalog.Lookup(env.Type)
	if !known {
		return evt, nil
	}
	evt.Known = true

	if len(et.Definition.Schema) > 0 {
		data := env.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		if err := g.validator.Validate(et.Definition.Schema, data); err != nil {
			return nil, reject(ReasonMalformedPayload, msgID, "data does not match "+env.Type+" schema")
		}
	}

	if event.IsUserEvent(env.Type) {
		var user event.UserData
		if err := json.Unmarshal(env.Data, &user); err != nil {
			return nil, reject(ReasonMalformedPayload, msgID, "invalid user object")
		}
		evt.User = &user
	}
	return evt, nil
}

func firstHeader(h http.Header, names []string) string {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}
