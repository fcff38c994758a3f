package providers

import "strings"

// ModelRef represents a parsed model reference with provider and model name.
type ModelRef struct {
	Provider string
	Model    string
}

// ParseModelRef parses "anthropic/claude-sonnet-4" into its provider and
// model parts. The prefix is treated as a provider only when known is nil
// and the prefix is a well-known vendor, or when known contains it. Anything
// else resolves to defaultProvider with the full string as the model, so
// "meta-llama/Llama-3" stays intact for OpenAI-compatible gateways.
// Returns nil for empty input.
func ParseModelRef(raw string, defaultProvider string, known map[string]bool) *ModelRef {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if idx := strings.Index(raw, "/"); idx > 0 {
		prefix := NormalizeProvider(raw[:idx])
		model := strings.TrimSpace(raw[idx+1:])
		if model == "" {
			return nil
		}
		if known[prefix] || (known == nil && isKnownProviderPrefix(prefix)) {
			return &ModelRef{Provider: prefix, Model: model}
		}
	}

	return &ModelRef{
		Provider: NormalizeProvider(defaultProvider),
		Model:    raw,
	}
}

var knownProviderPrefixes = map[string]struct{}{
	"openai":     {},
	"anthropic":  {},
	"openrouter": {},
	"groq":       {},
	"gemini":     {},
	"ollama":     {},
	"deepseek":   {},
	"mistral":    {},
	"vllm":       {},
	"together":   {},
}

func isKnownProviderPrefix(prefix string) bool {
	_, ok := knownProviderPrefixes[prefix]
	return ok
}

// NormalizeProvider normalizes provider identifiers to canonical form.
func NormalizeProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))

	switch p {
	case "gpt":
		return "openai"
	case "claude":
		return "anthropic"
	case "google":
		return "gemini"
	}

	return p
}

// ModelKey returns a canonical "provider/model" key for deduplication.
func ModelKey(provider, model string) string {
	return NormalizeProvider(provider) + "/" + strings.ToLower(strings.TrimSpace(model))
}
