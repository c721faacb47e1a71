package channex

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
)

// ComputeSignature returns the hex HMAC-SHA256 of body keyed with the
// connection's webhook secret.
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares a provider-sent signature against the
// computed one in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := ComputeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SecretEqual compares two shared secrets in constant time.
func SecretEqual(configured, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

// PayloadHash returns the hex SHA-256 of the canonical (sorted-key)
// rendering of a JSON body, so re-deliveries with reordered keys hash
// identically. Non-JSON bodies hash verbatim.
func PayloadHash(body []byte) string {
	canonical, err := canonicalJSON(body)
	if err != nil {
		canonical = body
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// canonicalJSON re-marshals the body; encoding/json emits object keys
// in sorted order at every depth, which is exactly the canonical form.
func canonicalJSON(body []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
