// Package canonical turns arbitrary JSON-compatible values into a
// deterministic canonical form: identity-sorted arrays, recursively
// unpacked embedded JSON strings, and lexicographically sorted keys on
// serialization. Canonical serializations are the sole basis for
// equality everywhere else in mcpdrift.
package canonical

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Canonicalize returns the canonical form of a JSON-compatible value.
//
// Null and primitives pass through unchanged. Map values are canonicalized
// recursively (key ordering is applied by Marshal, since encoding/json
// emits map keys in sorted order). Slices are canonicalized element-wise
// and then stably sorted by ascending identity key. A field literally
// named "text" whose string value looks like JSON is parsed,
// canonicalized, and re-serialized in place.
//
// Canonicalize is idempotent: applying it to an already-canonical value
// yields an equal value.
func Canonicalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, elem := range val {
			ce := Canonicalize(elem)
			if k == "text" {
				if s, ok := ce.(string); ok {
					ce = normalizeEmbeddedJSON(s)
				}
			}
			out[k] = ce
		}
		return out
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, elem := range val {
			items[i] = Canonicalize(elem)
		}
		// Stable: elements with equal identity keys keep encounter order.
		sort.SliceStable(items, func(i, j int) bool {
			return IdentityKey(items[i]) < IdentityKey(items[j])
		})
		return items
	default:
		return v
	}
}

// Marshal serializes a value in canonical form. Two semantically
// equivalent inputs produce byte-identical output.
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(Canonicalize(v))
}

// identityFields is the ordered list of fields probed to derive an
// identity key for a record-shaped array element. The order matters:
// tools carry "name", resources "uri", resource templates "uriTemplate",
// content blocks "type", custom messages "method".
var identityFields = [...]string{"name", "uri", "uriTemplate", "type", "method"}

// IdentityKey derives the string used to match an array element across
// two snapshots and to order arrays deterministically. For record-shaped
// elements the identity fields are probed in order; when none is present
// the canonical JSON serialization of the element itself is used, which
// makes the function total. Non-record elements use their own string form.
func IdentityKey(v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		for _, f := range identityFields {
			if s, ok := val[f].(string); ok && s != "" {
				return s
			}
		}
		data, err := Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	case nil:
		return "null"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// normalizeEmbeddedJSON rewrites a "text" field value that smuggles JSON
// inside a string so that it compares structurally rather than as an
// opaque string. Values that do not parse are left byte-for-byte unchanged.
func normalizeEmbeddedJSON(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return s
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return s
	}

	data, err := Marshal(parsed)
	if err != nil {
		return s
	}
	return string(data)
}
