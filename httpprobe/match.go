package httpprobe

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Matcher reports whether a response shows the awaited state.
type Matcher func(Response) bool

// StatusIn2xx matches any successful status code.
var StatusIn2xx Matcher = func(r Response) bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusIn matches responses whose status code is one of codes.
func StatusIn(codes ...int) Matcher {
	return func(r Response) bool {
		for _, c := range codes {
			if r.StatusCode == c {
				return true
			}
		}
		return false
	}
}

// JSONField matches responses whose JSON body has want at path, using dot
// notation to navigate nested objects. The comparison is case-insensitive.
//
// Example:
//
//	// For response: {"data": {"status": "ACTIVE"}}
//	m := httpprobe.JSONField("data.status", "active")
func JSONField(path, want string) Matcher {
	return func(r Response) bool {
		got, ok := JSONValue(r.Body, path)
		return ok && strings.EqualFold(got, want)
	}
}

// JSONValue extracts the value at path from a JSON document as a string.
// Booleans render as "true"/"false" and numbers in their shortest form.
// The second result is false if the body is not JSON or the path is absent.
func JSONValue(body []byte, path string) (string, bool) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", false
	}
	return extractJSONPath(data, strings.Split(path, "."))
}

// extractJSONPath walks a JSON structure using dot notation parts.
func extractJSONPath(data interface{}, parts []string) (string, bool) {
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		current, ok = obj[part]
		if !ok {
			return "", false
		}
	}

	switch v := current.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

// BodyContains matches responses whose body contains text (case-insensitive).
func BodyContains(text string) Matcher {
	lower := strings.ToLower(text)
	return func(r Response) bool {
		return strings.Contains(strings.ToLower(string(r.Body)), lower)
	}
}

// BodyMatches returns a matcher for responses whose body matches the regular
// expression pattern. Returns an error if the pattern is invalid.
func BodyMatches(pattern string) (Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return func(r Response) bool {
		return re.Match(r.Body)
	}, nil
}

// AllOf matches responses accepted by every matcher. Nil matchers are skipped.
func AllOf(matchers ...Matcher) Matcher {
	return func(r Response) bool {
		for _, m := range matchers {
			if m != nil && !m(r) {
				return false
			}
		}
		return true
	}
}
