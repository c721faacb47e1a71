package channex

import (
	"encoding/json"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// sensitiveFragments flags any key whose lowercase name contains one of
// these. API keys must never reach audit rows.
var sensitiveFragments = []string{"api_key", "api-key", "apikey", "password", "secret", "token", "authorization"}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, frag := range sensitiveFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}

// SanitizeHeaders copies a header map with sensitive values redacted.
func SanitizeHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if isSensitiveKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = v
	}
	return out
}

// SanitizeJSON redacts sensitive fields at every depth of a JSON body.
// Unparseable input is replaced wholesale rather than logged raw.
func SanitizeJSON(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return json.RawMessage(`{"unparseable":true}`)
	}
	out, err := json.Marshal(redactValue(v))
	if err != nil {
		return json.RawMessage(`{"unparseable":true}`)
	}
	return out
}

func redactValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			if isSensitiveKey(k) {
				t[k] = redactedPlaceholder
				continue
			}
			t[k] = redactValue(val)
		}
		return t
	case []interface{}:
		for i := range t {
			t[i] = redactValue(t[i])
		}
		return t
	default:
		return v
	}
}
