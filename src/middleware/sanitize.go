package middleware

import "strings"

const redacted = "[REDACTED]"

var sensitiveFields = []string{
	"password",
	"token",
	"secret",
	"apikey",
	"authorization",
	"creditcard",
	"ssn",
	"cookie",
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	k = strings.NewReplacer("_", "", "-", "").Replace(k)
	for _, s := range sensitiveFields {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Sanitize returns a copy of v with sensitive keys redacted at any depth.
func Sanitize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return SanitizeMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Sanitize(item)
		}
		return out
	default:
		return v
	}
}

func SanitizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if isSensitive(k) {
			out[k] = redacted
			continue
		}
		out[k] = Sanitize(v)
	}
	return out
}
