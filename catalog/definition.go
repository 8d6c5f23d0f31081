package catalog

import (
	"encoding/json"

	"github.com/xraph/referral/id"
	"github.com/xraph/referral/internal/entity"
)

// Definition describes a provider event type the service understands.
type Definition struct {
	// Name is the provider's dot-separated event type, e.g. "user.created".
	Name string `json:"name"`

	// Description explains when the provider sends this event.
	Description string `json:"description"`

	// Group is the resource the event concerns ("user", "session").
	Group string `json:"group,omitempty"`

	// Schema is an optional JSON Schema for the envelope's "data" object.
	// Deliveries whose data fails the schema are rejected as malformed.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// EventType is a registered Definition.
type EventType struct {
	entity.Entity

	ID         id.ID      `json:"id"`
	Definition Definition `json:"definition"`
}

// userSchema requires the fields the service reads from a user object.
var userSchema = json.RawMessage(`{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"public_metadata": {"type": ["object", "null"]},
		"unsafe_metadata": {"type": ["object", "null"]}
	}
}`)

// deletedUserSchema is the reduced object sent with user.deleted.
var deletedUserSchema = json.RawMessage(`{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"deleted": {"type": "boolean"}
	}
}`)

// DefaultDefinitions lists the provider events registered by Default.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:        "user.created",
			Description: "A user signed up.",
			Group:       "user",
			Schema:      userSchema,
		},
		{
			Name:        "user.updated",
			Description: "A user's profile or metadata changed.",
			Group:       "user",
			Schema:      userSchema,
		},
		{
			Name:        "user.deleted",
			Description: "A user was deleted.",
			Group:       "user",
			Schema:      deletedUserSchema,
		},
		{
			Name:        "session.created",
			Description: "A user signed in.",
			Group:       "session",
		},
	}
}
