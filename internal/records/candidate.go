package records

import (
	"regexp"
	"sort"
	"strings"
)

// grammar ties a record type's marker (a cheap "looks like one" test) to its
// full validator.
type grammar struct {
	name   string
	marker *regexp.Regexp
	valid  func(text string) bool
}

var creditsGrammar = grammar{
	name:   "credits",
	marker: amountRe,
	valid: func(text string) bool {
		_, err := ParseRecordPlaintext(text)
		return err == nil
	},
}

var shareGrammar = grammar{
	name:   "share",
	marker: quantityRe,
	valid: func(text string) bool {
		_, err := ParseShareRecord(text)
		return err == nil
	},
}

// plaintextFields are checked, in order, before falling back to every string
// field of a record object.
var plaintextFields = []string{"plaintext", "data", "content"}

// normKey folds field-name casing and separators: isSpent, is_spent and
// IsSpent all become "isspent".
func normKey(k string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(k))
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	}
	return false
}

// fields returns a record object's fields, or nil if rec is not an object.
func fields(rec any) map[string]any {
	switch t := rec.(type) {
	case map[string]any:
		return t
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, v := range t {
			m[k] = v
		}
		return m
	}
	return nil
}

// isSpent reports whether a record object carries any spent marker.
func isSpent(rec any) bool {
	for k, v := range fields(rec) {
		switch normKey(k) {
		case "spent", "isspent":
			if truthy(v) {
				return true
			}
		case "status", "recordstatus":
			if s, ok := v.(string); ok && strings.EqualFold(s, "spent") {
				return true
			}
		}
	}
	return false
}

// extractPlaintext finds the plaintext inside a record of unknown shape:
// the record itself if it is a string with the grammar's marker, then the
// well-known fields, then any other string field. Fields must fully validate;
// an invalid well-known field does not stop the scan. Fields are scanned in
// sorted order so the result does not depend on map iteration.
func extractPlaintext(rec any, g grammar) (string, bool) {
	if s, ok := rec.(string); ok {
		return s, g.marker.MatchString(s)
	}

	f := fields(rec)
	if f == nil {
		return "", false
	}
	byNorm := make(map[string]string, len(f))
	keys := make([]string, 0, len(f))
	for k, v := range f {
		if s, ok := v.(string); ok && s != "" {
			byNorm[normKey(k)] = s
			keys = append(keys, k)
		}
	}

	for _, name := range plaintextFields {
		if s, ok := byNorm[name]; ok && g.valid(s) {
			return s, true
		}
	}

	sort.Strings(keys)
	for _, k := range keys {
		if s := f[k].(string); g.valid(s) {
			return s, true
		}
	}
	return "", false
}

// ciphertextOf returns the encrypted form of a record object, if present.
func ciphertextOf(rec any) string {
	for k, v := range fields(rec) {
		switch normKey(k) {
		case "recordciphertext", "ciphertext":
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
