// Package id defines the identifiers of referral records.
//
// An ID is a TypeID: a type prefix and a UUIDv7 suffix, e.g.
// "attr_01h455vb4pex5vsknk084sn02q". The prefix says what the record is, so
// attribution and receipt ids are never confused in logs or storage, and
// the suffix sorts by creation time.
package id

import (
	"errors"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the record type part of an ID.
type Prefix string

const (
	PrefixAttribution Prefix = "attr"
	PrefixReceipt     Prefix = "rcpt"
	PrefixEventType   Prefix = "evtype"
)

// ErrEmpty is returned when parsing an empty string.
var ErrEmpty = errors.New("id: empty")

// ID is a prefixed, time-ordered identifier. The zero value is Nil.
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	tid typeid.TypeID
	ok  bool
}

// Nil is the zero ID. It renders as "".
var Nil ID

// New returns a fresh ID of the given type. Prefixes are package constants,
// so an invalid one is a programming error and panics.
func New(p Prefix) ID {
	tid, err := typeid.Generate(string(p))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", p, err))
	}
	return ID{tid: tid, ok: true}
}

func NewAttributionID() ID { return New(PrefixAttribution) }
func NewReceiptID() ID     { return New(PrefixReceipt) }
func NewEventTypeID() ID   { return New(PrefixEventType) }

// Parse decodes s. When want is given, the prefix must be one of them.
func Parse(s string, want ...Prefix) (ID, error) {
	if s == "" {
		return Nil, ErrEmpty
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: %q: %w", s, err)
	}
	parsed := ID{tid: tid, ok: true}
	if len(want) == 0 {
		return parsed, nil
	}
	for _, p := range want {
		if parsed.Prefix() == p {
			return parsed, nil
		}
	}
	return Nil, fmt.Errorf("id: %q has prefix %q, want %q", s, parsed.Prefix(), want[0])
}

// ParseAttributionID parses an "attr_" id.
func ParseAttributionID(s string) (ID, error) { return Parse(s, PrefixAttribution) }

// ParseReceiptID parses an "rcpt_" id.
func ParseReceiptID(s string) (ID, error) { return Parse(s, PrefixReceipt) }

func (i ID) String() string {
	if !i.ok {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the record type, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.ok {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) IsNil() bool { return !i.ok }

// MarshalText encodes Nil as an empty string.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText accepts any prefix; an empty input yields Nil.
func (i *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
