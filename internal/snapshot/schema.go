package snapshot

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const documentSchema = `{
  "type": "object",
  "required": ["version", "state"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "created_at": {"type": "string"},
    "state": {
      "type": "object",
      "required": ["balance", "initial_balance", "inventory", "prices", "recipes", "authorized_products", "role"],
      "properties": {
        "balance": {"type": "number"},
        "initial_balance": {"type": "number"},
        "inventory": {"type": "object", "additionalProperties": {"type": "integer"}},
        "prices": {"type": "object", "additionalProperties": {"type": "number"}},
        "recipes": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "required": ["kind"],
            "properties": {
              "kind": {"enum": ["BASIC", "PREMIUM", ""]},
              "ingredients": {"type": "object", "additionalProperties": {"type": "integer"}},
              "premium_bonus": {"type": "number"}
            }
          }
        },
        "authorized_products": {"type": ["array", "null"], "items": {"type": "string"}},
        "role": {
          "type": ["object", "null"],
          "properties": {
            "branches": {"type": "number"},
            "max_depth": {"type": "integer"},
            "decay": {"type": "number"},
            "base_energy": {"type": "number"},
            "level_energy": {"type": "number"},
            "budget": {"type": "number"}
          }
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("snapshot.schema.json", documentSchema)

func validate(payload []byte) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return compiledSchema.Validate(doc)
}
