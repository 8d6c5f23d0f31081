package id_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/referral/id"
)

func TestNewPrefixes(t *testing.T) {
	cases := map[id.Prefix]id.ID{
		id.PrefixAttribution: id.NewAttributionID(),
		id.PrefixReceipt:     id.NewReceiptID(),
		id.PrefixEventType:   id.NewEventTypeID(),
	}
	for prefix, got := range cases {
		if got.Prefix() != prefix {
			t.Errorf("Prefix() = %q, want %q", got.Prefix(), prefix)
		}
		if !strings.HasPrefix(got.String(), string(prefix)+"_") {
			t.Errorf("String() = %q, want prefix %q", got.String(), prefix)
		}
	}
}

func TestParsePrefixCheck(t *testing.T) {
	rcpt := id.NewReceiptID()
	if _, err := id.ParseAttributionID(rcpt.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
	parsed, err := id.ParseReceiptID(rcpt.String())
	if err != nil {
		t.Fatalf("ParseReceiptID: %v", err)
	}
	if parsed.String() != rcpt.String() {
		t.Fatalf("parsed %q, want %q", parsed, rcpt)
	}
	if _, err := id.Parse(rcpt.String(), id.PrefixAttribution, id.PrefixReceipt); err != nil {
		t.Fatalf("any-of prefixes: %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := id.Parse(""); !errors.Is(err, id.ErrEmpty) {
		t.Fatalf("Parse(\"\") = %v, want ErrEmpty", err)
	}
	if _, err := id.Parse("not an id"); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestNilID(t *testing.T) {
	if !id.Nil.IsNil() || id.Nil.String() != "" || id.Nil.Prefix() != "" {
		t.Fatal("Nil should be empty")
	}
	var got id.ID
	if err := got.UnmarshalText(nil); err != nil || !got.IsNil() {
		t.Fatalf("UnmarshalText(nil) = %v, %v", got, err)
	}
}

func TestJSONField(t *testing.T) {
	type rec struct {
		ID id.ID `json:"id"`
	}
	in := rec{ID: id.NewAttributionID()}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out rec
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID.String() != in.ID.String() {
		t.Fatalf("got %q, want %q", out.ID, in.ID)
	}
}
