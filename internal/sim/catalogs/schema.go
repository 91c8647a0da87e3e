package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var cropsSchema = jsonschema.MustCompileString("crops.schema.json", `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["crops"],
  "additionalProperties": false,
  "properties": {
    "stalk_soil": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "crops": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "growth", "plant", "seed"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "growth": {"enum": ["IN_PLACE", "STEM", "STALK"]},
          "max_age": {"type": "integer", "minimum": 0},
          "plant": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
          "harvest": {"type": "string"},
          "products": {"type": "array", "items": {"type": "string"}},
          "seed": {"type": "string"}
        }
      }
    }
  }
}`)

var blocksSchema = jsonschema.MustCompileString("blocks.schema.json", `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name"],
    "additionalProperties": false,
    "properties": {
      "name": {"type": "string", "minLength": 1},
      "age": {"type": "integer", "minimum": 0},
      "facing": {"enum": ["north", "south", "west", "east"]}
    }
  }
}`)

func validate(s *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
