package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Ordered so provider-specific key shapes match before the generic ones.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9\-_]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]{20,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?token|secret)\s*[=:]\s*['"]?[a-zA-Z0-9_\-\.]{16,}['"]?`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
}

// Field names (or their last "_"/"-" separated segment) that always hold
// credentials. Matching whole segments keeps counters such as "tokens" or
// "tokens_after" readable.
var sensitiveFieldNames = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"secret":        true,
	"password":      true,
	"authorization": true,
}

// Redact masks API keys and bearer tokens in s.
func Redact(s string) string {
	if s == "" {
		return s
	}
	for _, re := range secretPatterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

// RedactFields returns a copy of fields with sensitive keys masked and string
// values scrubbed, descending into nested maps and slices. The input map is
// not modified.
func RedactFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return fields
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveField(k) {
			out[k] = redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return Redact(val)
	case map[string]any:
		return RedactFields(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return RedactFields(m)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = Redact(item)
		}
		return out
	default:
		return v
	}
}

func isSensitiveField(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if sensitiveFieldNames[lower] {
		return true
	}
	if i := strings.LastIndexAny(lower, "_-"); i >= 0 {
		last := lower[i+1:]
		if sensitiveFieldNames[last] {
			return true
		}
		// x_api_key, openai-api-key
		if last == "key" && (strings.HasSuffix(lower[:i], "api") || strings.HasSuffix(lower[:i], "secret")) {
			return true
		}
	}
	return false
}
