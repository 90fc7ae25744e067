package event

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// FieldExtractor looks up a semantic field across the set of key aliases
// different telephony providers use for it. Keys are compared after
// normalization: lowercase with non-alphanumerics stripped, so
// "CallSid", "call_sid" and "callSid" all collide.
type FieldExtractor interface {
	// Get returns the first non-empty value found for any alias.
	Get(aliases ...string) (string, bool)
}

// normalizeKey collapses a field name for alias-insensitive matching.
func normalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

// formExtractor adapts url.Values to the FieldExtractor contract.
type formExtractor struct {
	index map[string]string
}

func newFormExtractor(values url.Values) *formExtractor {
	index := make(map[string]string, len(values))
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	// Sorted iteration keeps alias collisions deterministic.
	sort.Strings(keys)
	for _, k := range keys {
		norm := normalizeKey(k)
		if _, exists := index[norm]; !exists {
			index[norm] = values.Get(k)
		}
	}
	return &formExtractor{index: index}
}

func (f *formExtractor) Get(aliases ...string) (string, bool) {
	for _, alias := range aliases {
		if v, ok := f.index[normalizeKey(alias)]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// maxWalkDepth bounds the JSON tree walk. Provider payloads nest the
// interesting fields at most a few levels deep.
const maxWalkDepth = 4

// jsonExtractor walks a decoded JSON tree breadth-first to maxWalkDepth
// and indexes the first occurrence of every normalized key. Shallower
// occurrences win; within one object, keys are visited in sorted order
// so extraction is deterministic.
type jsonExtractor struct {
	scalars map[string]string
	objects map[string]map[string]any
}

func newJSONExtractor(root any) *jsonExtractor {
	ex := &jsonExtractor{
		scalars: make(map[string]string),
		objects: make(map[string]map[string]any),
	}

	type frame struct {
		node  any
		depth int
	}
	queue := []frame{{node: root, depth: 0}}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if f.depth >= maxWalkDepth {
			continue
		}

		switch node := f.node.(type) {
		case map[string]any:
			keys := make([]string, 0, len(node))
			for k := range node {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				norm := normalizeKey(k)
				value := node[k]
				if s, ok := scalarString(value); ok {
					if _, exists := ex.scalars[norm]; !exists && s != "" {
						ex.scalars[norm] = s
					}
					continue
				}
				if obj, ok := value.(map[string]any); ok {
					if _, exists := ex.objects[norm]; !exists {
						ex.objects[norm] = obj
					}
				}
				queue = append(queue, frame{node: value, depth: f.depth + 1})
			}
		case []any:
			for _, item := range node {
				queue = append(queue, frame{node: item, depth: f.depth + 1})
			}
		}
	}

	return ex
}

func (j *jsonExtractor) Get(aliases ...string) (string, bool) {
	for _, alias := range aliases {
		if v, ok := j.scalars[normalizeKey(alias)]; ok {
			return v, true
		}
	}
	return "", false
}

// Object returns the first nested object stored under any alias.
func (j *jsonExtractor) Object(aliases ...string) (map[string]any, bool) {
	for _, alias := range aliases {
		if obj, ok := j.objects[normalizeKey(alias)]; ok {
			return obj, true
		}
	}
	return nil, false
}

// scalarString renders a JSON leaf value as a string.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case nil:
		return "", true
	default:
		return "", false
	}
}
