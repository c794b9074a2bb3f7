// Package masking redacts credentials before they are written to audit metadata.
package masking

import "strings"

const maskToken = "****"

// sensitiveFragments mark metadata keys whose string values are credentials.
var sensitiveFragments = []string{"secret", "api_key", "key_hash", "password", "authorization", "token"}

// MaskAPIKey keeps the tl_<key id>_ prefix so an auditor can tell which key
// was involved, and the last four characters of the secret.
func MaskAPIKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	cut := strings.LastIndex(trimmed, "_")
	prefix, secret := "", trimmed
	if cut >= 0 && cut < len(trimmed)-1 {
		prefix, secret = trimmed[:cut+1], trimmed[cut+1:]
	}
	if len(secret) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + secret[len(secret)-4:]
}

// IsSensitiveKey reports whether a metadata key names a credential.
// Identifiers such as key_id and idempotency_key stay readable.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "key_id" || strings.HasSuffix(key, "idempotency_key") {
		return false
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}

// Metadata copies metadata with credential values masked, descending into
// nested maps. Empty keys are dropped.
func Metadata(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch cast := value.(type) {
		case string:
			if IsSensitiveKey(key) {
				value = MaskAPIKey(cast)
			}
		case map[string]any:
			value = Metadata(cast)
		}
		out[key] = value
	}
	return out
}
