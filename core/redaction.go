package core

import "strings"

const (
	RedactedValue       = "[REDACTED]"
	RedactedPayloadText = "<redacted>"
)

var mergeProposalRedactedKeys = map[string]struct{}{
	"commit_message": {},
	"whiteboard":     {},
	"description":    {},
}

// RedactPayload returns a copy of payload that is safe to log. Merge proposal
// free-text fields are replaced outright and every multi-line string is cut
// to its first line. Applying it twice yields the same result as once.
func RedactPayload(eventType string, payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	mergeProposal := strings.HasPrefix(eventType, "merge-proposal:")
	return redactPayloadMap(payload, mergeProposal)
}

func redactPayloadMap(source map[string]any, mergeProposal bool) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if mergeProposal {
			if _, denied := mergeProposalRedactedKeys[key]; denied {
				target[key] = RedactedPayloadText
				continue
			}
		}
		target[key] = redactPayloadValue(value, mergeProposal)
	}
	return target
}

func redactPayloadValue(value any, mergeProposal bool) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactPayloadMap(typed, mergeProposal)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactPayloadValue(typed[i], mergeProposal)
		}
		return out
	case string:
		if first, _, found := strings.Cut(typed, "\n"); found {
			return first + "\n" + RedactedPayloadText
		}
		return typed
	default:
		return value
	}
}

// RedactSensitiveMap masks values whose keys look like credentials. Used for
// response headers before they reach the log.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	target := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			target[key] = RedactSensitiveMap(nested)
			continue
		}
		target[key] = value
	}
	return target
}

func RedactHeaders(headers map[string]string) map[string]any {
	if len(headers) == 0 {
		return map[string]any{}
	}
	raw := make(map[string]any, len(headers))
	for key, value := range headers {
		raw[key] = value
	}
	return RedactSensitiveMap(raw)
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	sensitiveTokens := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"cookie",
		"api_key",
		"apikey",
		"signature",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}
