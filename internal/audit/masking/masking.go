// Package masking redacts payment references and recipient addresses before
// they are written to the audit log.
package masking

import "strings"

const maskToken = "****"

// sensitiveKeys lists audit metadata keys whose values never reach the log in clear.
var sensitiveKeys = map[string]bool{
	"payout_reference": true,
	"to":               true,
	"client_email":     true,
	"recipient":        true,
}

// IsSensitive reports whether values under key are masked.
func IsSensitive(key string) bool {
	return sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
}

// Reference keeps the last four characters and any "kind_" prefix, e.g.
// "ach_987654321" becomes "ach_****4321".
func Reference(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, rest := "", trimmed
	if i := strings.LastIndex(trimmed, "_"); i >= 0 && i < len(trimmed)-1 {
		prefix, rest = trimmed[:i+1], trimmed[i+1:]
	}
	if len(rest) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + rest[len(rest)-4:]
}

// Email keeps the first character of the local part and the whole domain.
func Email(value string) string {
	trimmed := strings.TrimSpace(value)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return Reference(trimmed)
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// Metadata returns a copy of input with sensitive keys masked, recursing into
// nested maps. Non-string values under sensitive keys are dropped.
func Metadata(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		if nested, ok := value.(map[string]any); ok {
			out[key] = Metadata(nested)
			continue
		}
		if !IsSensitive(key) {
			out[key] = value
			continue
		}
		s, ok := value.(string)
		if !ok {
			continue
		}
		if strings.Contains(s, "@") {
			out[key] = Email(s)
		} else {
			out[key] = Reference(s)
		}
	}
	return out
}
