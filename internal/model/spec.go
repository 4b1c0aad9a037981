package model

// objectsKey is the conventional location of the object list inside a design
// spec. Specs without it are still valid; edit actions simply never match.
const objectsKey = "objects"

// Clone deep-copies a spec so episode working copies never alias the base
// spec supplied by the caller.
func (s Spec) Clone() Spec {
	if s == nil {
		return nil
	}
	return cloneValue(map[string]any(s)).(map[string]any)
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = cloneValue(item)
		}
		return out
	case Spec:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Objects returns the spec's object records, skipping list entries that are
// not keyed records.
func (s Spec) Objects() []map[string]any {
	list, ok := s[objectsKey].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// FindObject locates an object record by its "id" field.
func (s Spec) FindObject(id string) (map[string]any, bool) {
	for _, obj := range s.Objects() {
		if objID, ok := obj["id"].(string); ok && objID == id {
			return obj, true
		}
	}
	return nil, false
}
