package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the placeholder written in place of sensitive values.
const RedactedValue = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"signature":     {},
	"x-signature":   {},
	"authorization": {},
	"token":         {},
	"jwt":           {},
	"passphrase":    {},
	"password":      {},
	"private_key":   {},
	"secret":        {},
}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := sensitiveKeys[normalized]
	return ok
}

// SensitiveKeys returns the masked keys in sorted order.
func SensitiveKeys() []string {
	keys := make([]string, 0, len(sensitiveKeys))
	for key := range sensitiveKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the redacted placeholder for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns an attribute whose value is masked when key is sensitive.
func MaskField(key, value string) slog.Attr {
	if !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}
