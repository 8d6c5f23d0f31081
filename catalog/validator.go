package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks event data against a definition's JSON Schema.
// Compiled schemas are kept for the life of the Validator; the catalog only
// holds a handful of them.
type Validator struct {
	compiled sync.Map // string(schema) -> *jsonschema.Schema
	seq      int
	mu       sync.Mutex
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate reports whether data satisfies schema. A nil or empty schema
// accepts anything.
func (v *Validator) Validate(schema json.RawMessage, data []byte) error {
	if len(schema) == 0 {
		return nil
	}
	sch, err := v.schemaFor(schema)
	if err != nil {
		return err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("catalog: data is not JSON: %w", err)
	}
	return sch.Validate(doc)
}

func (v *Validator) schemaFor(raw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(raw)
	if sch, ok := v.compiled.Load(key); ok {
		return sch.(*jsonschema.Schema), nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("catalog: schema is not JSON: %w", err)
	}

	v.mu.Lock()
	v.seq++
	loc := fmt.Sprintf("mem://catalog/%d.json", v.seq)
	v.mu.Unlock()

	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("catalog: load schema: %w", err)
	}
	sch, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("catalog: compile schema: %w", err)
	}

	actual, _ := v.compiled.LoadOrStore(key, sch)
	return actual.(*jsonschema.Schema), nil
}
