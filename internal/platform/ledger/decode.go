package ledger

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// cdcValue is one node of the schema-tagged payload tree. Scalars carry their
// value as a string; composites nest further cdcValues.
type cdcValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// cdcField is a named field of a composite payload.
type cdcField struct {
	Name  string   `json:"name"`
	Value cdcValue `json:"value"`
}

// cdcComposite is the body of an Event/Struct/Resource payload.
type cdcComposite struct {
	ID     string     `json:"id"`
	Fields []cdcField `json:"fields"`
}

// DecodePayload decodes a base64-encoded, schema-tagged event payload into a
// flat name → value map. Optionals are unwrapped (nil optionals are omitted),
// nested scalar wrappers are flattened to their string form, and type
// references are flattened to their type identifier.
func DecodePayload(payload string) (map[string]string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("ledger: decode payload base64: %w", err)
	}

	var root cdcValue
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("ledger: unmarshal payload: %w", err)
	}

	var composite cdcComposite
	if err := json.Unmarshal(root.Value, &composite); err != nil {
		return nil, fmt.Errorf("ledger: unmarshal event body: %w", err)
	}

	fields := make(map[string]string, len(composite.Fields))
	for _, f := range composite.Fields {
		v, ok, err := flatten(f.Value)
		if err != nil {
			return nil, fmt.Errorf("ledger: field %q: %w", f.Name, err)
		}
		if ok {
			fields[f.Name] = v
		}
	}
	return fields, nil
}

// flatten reduces one payload node to its string form. The second return is
// false when the node is a nil optional and should be omitted.
func flatten(v cdcValue) (string, bool, error) {
	switch v.Type {
	case "Optional":
		if string(v.Value) == "null" {
			return "", false, nil
		}
		var inner cdcValue
		if err := json.Unmarshal(v.Value, &inner); err != nil {
			return "", false, fmt.Errorf("optional: %w", err)
		}
		return flatten(inner)

	case "Type":
		// {"staticType": "A.xxxx.TopShot.NFT"} or {"staticType": {"typeID": ...}}
		var st struct {
			StaticType json.RawMessage `json:"staticType"`
		}
		if err := json.Unmarshal(v.Value, &st); err != nil {
			return "", false, fmt.Errorf("type reference: %w", err)
		}
		var s string
		if err := json.Unmarshal(st.StaticType, &s); err == nil {
			return s, true, nil
		}
		var obj struct {
			TypeID string `json:"typeID"`
		}
		if err := json.Unmarshal(st.StaticType, &obj); err != nil {
			return "", false, fmt.Errorf("type reference body: %w", err)
		}
		return obj.TypeID, true, nil

	default:
		// Scalars (UInt64, UFix64, String, Address, Bool, ...) carry their
		// value as a JSON string or bare literal.
		var s string
		if err := json.Unmarshal(v.Value, &s); err == nil {
			return s, true, nil
		}
		var b bool
		if err := json.Unmarshal(v.Value, &b); err == nil {
			if b {
				return "true", true, nil
			}
			return "false", true, nil
		}
		var n json.Number
		if err := json.Unmarshal(v.Value, &n); err == nil {
			return n.String(), true, nil
		}
		return "", false, fmt.Errorf("unsupported value kind %q", v.Type)
	}
}
