package store

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"go.mongodb.org/mongo-driver/bson"
)

// collectionSchema builds a mongo $jsonSchema validator from a record struct.
// The schema is reflected from the json tags and then adjusted for mongo's
// draft-4 dialect: meta keywords are stripped, the id property is dropped
// (stored as native _id), and date-time strings become bson dates.
func collectionSchema(v any) (bson.M, error) {
	reflector := jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}

	data, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reflected schema: %w", err)
	}

	schema := bson.M{}
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to decode reflected schema: %w", err)
	}

	delete(schema, "$schema")
	delete(schema, "$id")

	if props, ok := schema["properties"].(map[string]any); ok {
		delete(props, "id") // external backend keeps the identifier in _id
		for name, raw := range props {
			prop, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if prop["format"] == "date-time" {
				props[name] = map[string]any{"bsonType": "date"}
			}
		}
	}

	if required, ok := schema["required"].([]any); ok {
		kept := make([]any, 0, len(required))
		for _, field := range required {
			if field != "id" {
				kept = append(kept, field)
			}
		}
		schema["required"] = kept
	}

	return schema, nil
}
