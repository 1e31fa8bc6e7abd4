package environ

import (
	"sort"
	"strings"
)

// MergeEnv merges override variables over a base environment and returns
// the result as KEY=VALUE pairs for process spawning. The base is never
// mutated; overridden keys are replaced, new keys are appended in sorted
// order so spawn environments are deterministic.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return append([]string(nil), base...)
	}

	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, overridden := overrides[key]; overridden {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}

	return out
}
