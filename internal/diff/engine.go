// Package diff computes structural, path-addressed differences between
// two canonicalized JSON-compatible values. Arrays are matched by
// identity key, never positionally, so reordering a tool list produces
// no entries while renaming a tool produces a removed/added pair.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"mcpdrift/internal/canonical"
)

// Differ computes structural diffs with configurable render limits
type Differ struct {
	limits RenderLimits
}

// NewDiffer creates a Differ with the given render limits; zero limits
// fall back to the defaults.
func NewDiffer(limits RenderLimits) *Differ {
	def := DefaultRenderLimits()
	if limits.MaxStringLength <= 0 {
		limits.MaxStringLength = def.MaxStringLength
	}
	if limits.MaxObjectLength <= 0 {
		limits.MaxObjectLength = def.MaxObjectLength
	}
	return &Differ{limits: limits}
}

// Diff compares two canonical values with the default render limits.
func Diff(base, branch interface{}, path string) []Entry {
	return NewDiffer(DefaultRenderLimits()).Diff(base, branch, path)
}

// Diff returns the ordered list of structural differences between two
// canonical values rooted at path. The result is empty iff the values
// are structurally equal; that emptiness is the single source of truth
// for "no drift".
func (d *Differ) Diff(base, branch interface{}, path string) []Entry {
	if base == nil && branch == nil {
		return nil
	}
	if base == nil {
		return []Entry{{Path: path, Kind: Added, NewValue: d.render(branch)}}
	}
	if branch == nil {
		return []Entry{{Path: path, Kind: Removed, OldValue: d.render(base)}}
	}

	if kindOf(base) != kindOf(branch) {
		// A type change is reported as replace, not as a nested diff.
		return []Entry{
			{Path: path, Kind: Removed, OldValue: d.render(base)},
			{Path: path, Kind: Added, NewValue: d.render(branch)},
		}
	}

	switch b := base.(type) {
	case map[string]interface{}:
		return d.diffMaps(b, branch.(map[string]interface{}), path)
	case []interface{}:
		return d.diffArrays(b, branch.([]interface{}), path)
	default:
		if base != branch {
			return []Entry{
				{Path: path, Kind: Removed, OldValue: d.render(base)},
				{Path: path, Kind: Added, NewValue: d.render(branch)},
			}
		}
		return nil
	}
}

// diffMaps unions the key sets and recurses into keys present on both sides.
func (d *Differ) diffMaps(base, branch map[string]interface{}, path string) []Entry {
	keys := make([]string, 0, len(base)+len(branch))
	seen := make(map[string]bool, len(base)+len(branch))
	for k := range base {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range branch {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var entries []Entry
	for _, k := range keys {
		bv, inBase := base[k]
		rv, inBranch := branch[k]
		childPath := joinKey(path, k)
		switch {
		case inBase && !inBranch:
			entries = append(entries, Entry{Path: childPath, Kind: Removed, OldValue: d.render(bv)})
		case !inBase && inBranch:
			entries = append(entries, Entry{Path: childPath, Kind: Added, NewValue: d.render(rv)})
		default:
			entries = append(entries, d.Diff(bv, rv, childPath)...)
		}
	}
	return entries
}

// diffArrays matches elements by identity key. Keys only in base are
// removed, keys only in branch are added, shared keys recurse.
func (d *Differ) diffArrays(base, branch []interface{}, path string) []Entry {
	baseByKey := keyElements(base)
	branchByKey := keyElements(branch)

	var entries []Entry
	for _, elem := range base {
		key := canonical.IdentityKey(elem)
		childPath := fmt.Sprintf("%s[%s]", path, key)
		if other, ok := branchByKey[key]; ok {
			entries = append(entries, d.Diff(elem, other, childPath)...)
		} else {
			entries = append(entries, Entry{Path: childPath, Kind: Removed, OldValue: d.render(elem)})
		}
	}
	for _, elem := range branch {
		key := canonical.IdentityKey(elem)
		if _, ok := baseByKey[key]; !ok {
			childPath := fmt.Sprintf("%s[%s]", path, key)
			entries = append(entries, Entry{Path: childPath, Kind: Added, NewValue: d.render(elem)})
		}
	}
	return entries
}

// keyElements maps identity key to element. Duplicate keys keep the
// last element; canonical arrays are sorted so this is deterministic.
func keyElements(items []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(items))
	for _, elem := range items {
		m[canonical.IdentityKey(elem)] = elem
	}
	return m
}

// render produces the bounded human rendering of a value for an entry.
func (d *Differ) render(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return truncate(val, d.limits.MaxStringLength)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(canonical.Canonicalize(val))
		if err != nil {
			return truncate(fmt.Sprintf("%v", val), d.limits.MaxObjectLength)
		}
		return truncate(string(data), d.limits.MaxObjectLength)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// truncate cuts on a rune boundary so a multi-byte character is never
// split into invalid UTF-8 in a rendered report.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// joinKey appends a map key to a dot path
func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

type valueKind int

const (
	kindNull valueKind = iota
	kindMap
	kindList
	kindString
	kindBool
	kindNumber
	kindOther
)

func kindOf(v interface{}) valueKind {
	switch v.(type) {
	case nil:
		return kindNull
	case map[string]interface{}:
		return kindMap
	case []interface{}:
		return kindList
	case string:
		return kindString
	case bool:
		return kindBool
	case float64, int, int64, json.Number:
		return kindNumber
	default:
		return kindOther
	}
}
