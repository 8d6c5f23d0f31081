package catalog_test

import (
	"encoding/json"
	"testing"

	"github.com/xraph/referral/catalog"
)

func TestDefaultCatalog(t *testing.T) {
	c := catalog.Default()

	for _, name := range []string{"user.created", "user.updated", "user.deleted", "session.created"} {
		et, ok := c.Lookup(name)
		if !ok {
			t.Fatalf("expected %q to be registered", name)
		}
		if et.ID.IsNil() {
			t.Fatalf("%q: expected an ID to be assigned", name)
		}
	}

	if _, ok := c.Lookup("organization.created"); ok {
		t.Fatal("organization.created should not be registered")
	}
	if got := len(c.Types()); got != 4 {
		t.Fatalf("expected 4 types, got %d", got)
	}
}

func TestSubscribed(t *testing.T) {
	c := catalog.Default()

	if !c.Subscribed("user.created") {
		t.Error("user.created should be subscribed")
	}
	if c.Subscribed("session.created") {
		t.Error("session.created is registered but outside user.*")
	}
	if c.Subscribed("user.banned") {
		t.Error("unregistered types are never subscribed")
	}
}

func TestSubscribedWithoutPatterns(t *testing.T) {
	c := catalog.New()
	if err := c.Register(catalog.Definition{Name: "session.created"}); err != nil {
		t.Fatal(err)
	}
	if !c.Subscribed("session.created") {
		t.Error("a catalog without patterns dispatches every registered type")
	}
}

func TestRegisterReplaces(t *testing.T) {
	c := catalog.New()
	if err := c.Register(catalog.Definition{Name: "user.created", Description: "v1"}); err != nil {
		t.Fatal(err)
	}
	first, _ := c.Lookup("user.created")

	if err := c.Register(catalog.Definition{Name: "user.created", Description: "v2"}); err != nil {
		t.Fatal(err)
	}
	second, _ := c.Lookup("user.created")

	if second.ID.String() != first.ID.String() {
		t.Error("re-registering should keep the original ID")
	}
	if second.Definition.Description != "v2" {
		t.Errorf("expected description v2, got %q", second.Definition.Description)
	}
}

func TestRegisterRequiresName(t *testing.T) {
	if err := catalog.New().Register(catalog.Definition{}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestDefaultSchemasValidate(t *testing.T) {
	v := catalog.NewValidator()
	c := catalog.Default()
	created, _ := c.Lookup("user.created")

	valid := []byte(`{"id":"u_123","unsafe_metadata":{"referralCode":"ABC"}}`)
	if err := v.Validate(created.Definition.Schema, valid); err != nil {
		t.Fatalf("valid user rejected: %v", err)
	}

	for _, doc := range []string{`{}`, `{"id":""}`, `{"id":42}`, `[]`, `"u_123"`} {
		if err := v.Validate(created.Definition.Schema, []byte(doc)); err == nil {
			t.Errorf("expected %s to fail the user schema", doc)
		}
	}
}

func TestValidatorEmptySchema(t *testing.T) {
	v := catalog.NewValidator()
	if err := v.Validate(nil, []byte(`{"anything":true}`)); err != nil {
		t.Fatal("empty schema should skip validation, got:", err)
	}
}

func TestValidatorWrongType(t *testing.T) {
	v := catalog.NewValidator()
	schema := json.RawMessage(`{"type":"object","properties":{"amount":{"type":"number"}}}`)

	if err := v.Validate(schema, []byte(`{"amount":"lots"}`)); err == nil {
		t.Fatal("expected validation error for wrong type")
	}
	if err := v.Validate(schema, []byte(`{"amount":12.5}`)); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}
}

func TestValidatorMalformedDocument(t *testing.T) {
	v := catalog.NewValidator()
	schema := json.RawMessage(`{"type":"object"}`)
	if err := v.Validate(schema, []byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed document")
	}
}

func TestValidatorCachesCompiledSchema(t *testing.T) {
	v := catalog.NewValidator()
	schema := json.RawMessage(`{"type":"object","required":["id"]}`)

	for i := 0; i < 3; i++ {
		if err := v.Validate(schema, []byte(`{"id":"x"}`)); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
	}
}
