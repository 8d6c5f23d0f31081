package ingest

import "errors"

// Sentinel errors wrapped by a Rejection.
var (
	ErrMissingHeaders   = errors.New("ingest: missing webhook headers")
	ErrStaleTimestamp   = errors.New("ingest: timestamp outside acceptance window")
	ErrInvalidSignature = errors.New("ingest: invalid signature")
	ErrMalformedPayload = errors.New("ingest: malformed payload")
)

// Reason classifies why a delivery was rejected.
type Reason int

const (
	ReasonMissingHeaders Reason = iota + 1
	ReasonStaleTimestamp
	ReasonInvalidSignature
	ReasonMalformedPayload
)

// String returns the short text sent back to the provider.
func (r Reason) String() string {
	switch r {
	case ReasonMissingHeaders:
		return "missing webhook headers"
	case ReasonStaleTimestamp:
		return "timestamp outside acceptance window"
	case ReasonInvalidSignature:
		return "invalid signature"
	case ReasonMalformedPayload:
		return "malformed payload"
	default:
		return "rejected"
	}
}

// Label is the metric/log label for the reason.
func (r Reason) Label() string {
	switch r {
	case ReasonMissingHeaders:
		return "missing_headers"
	case ReasonStaleTimestamp:
		return "stale_timestamp"
	case ReasonInvalidSignature:
		return "invalid_signature"
	case ReasonMalformedPayload:
		return "malformed_payload"
	default:
		return "unknown"
	}
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonMissingHeaders:
		return ErrMissingHeaders
	case ReasonStaleTimestamp:
		return ErrStaleTimestamp
	case ReasonInvalidSignature:
		return ErrInvalidSignature
	default:
		return ErrMalformedPayload
	}
}

// Rejection is returned by Gate.Verify for any delivery that must not be
// processed. It unwraps to the matching sentinel error.
type Rejection struct {
	Reason     Reason
	DeliveryID string
	Detail     string
}

func (r *Rejection) Error() string {
	msg := r.Reason.sentinel().Error()
	if r.Detail != "" {
		msg += ": " + r.Detail
	}
	return msg
}

func (r *Rejection) Unwrap() error { return r.Reason.sentinel() }

// AsRejection extracts a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

func reject(reason Reason, deliveryID, detail string) *Rejection {
	return &Rejection{Reason: reason, DeliveryID: deliveryID, Detail: detail}
}
