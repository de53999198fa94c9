package assessment

import (
	"bytes"
	"encoding/json"
	"strings"
)

// grade compares a submitted answer with the catalog's correct answer.
// Both are JSON values: strings compare case-insensitively after trimming,
// boolean arrays are positional choice masks, other arrays are selections
// compared without regard to order, and objects compare key by key.
func grade(correct, submitted json.RawMessage) bool {
	if len(bytes.TrimSpace(correct)) == 0 || len(bytes.TrimSpace(submitted)) == 0 {
		return false
	}

	var want, got any
	if err := json.Unmarshal(correct, &want); err != nil {
		return false
	}
	if err := json.Unmarshal(submitted, &got); err != nil {
		return false
	}
	return sameAnswer(want, got)
}

func sameAnswer(want, got any) bool {
	switch w := want.(type) {
	case string:
		g, ok := got.(string)
		return ok && strings.EqualFold(strings.TrimSpace(w), strings.TrimSpace(g))
	case []any:
		g, ok := got.([]any)
		if !ok || len(w) != len(g) {
			return false
		}
		if isChoiceMask(w) {
			for i := range w {
				if !sameAnswer(w[i], g[i]) {
					return false
				}
			}
			return true
		}
		return sameSelection(w, g)
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok || len(w) != len(g) {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !sameAnswer(wv, gv) {
				return false
			}
		}
		return true
	default:
		// float64, bool or nil
		return want == got
	}
}

// sameSelection reports whether want and got hold the same elements as
// multisets.
func sameSelection(want, got []any) bool {
	used := make([]bool, len(got))
	for _, w := range want {
		found := false
		for j, g := range got {
			if !used[j] && sameAnswer(w, g) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func isChoiceMask(values []any) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if _, ok := v.(bool); !ok {
			return false
		}
	}
	return true
}
