package diagnostics

import (
	"encoding/json"
	"strings"
)

const mask = "***"

// Redact returns a JSON-shaped copy of value with every password-like key
// masked. Values that cannot round-trip through JSON are returned as-is.
func Redact(value any) any {
	if value == nil {
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return value
		}
		raw = encoded
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if b, ok := value.([]byte); ok {
			return string(b)
		}
		return value
	}
	return redactNode(decoded)
}

func redactNode(node any) any {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if isSecretKey(key) {
				v[key] = mask
				continue
			}
			v[key] = redactNode(child)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = redactNode(child)
		}
		return v
	default:
		return v
	}
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "password") || lower == "pass" || lower == "access_token"
}

// RedactHeaders copies headers, masking credentials.
func RedactHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}

	out := make(map[string]string, len(headers))
	for key, value := range headers {
		switch strings.ToLower(key) {
		case "authorization", "proxy-authorization", "cookie":
			out[key] = mask
		default:
			out[key] = value
		}
	}
	return out
}
