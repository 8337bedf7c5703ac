package generation

import "strings"

// SanitizeJSON strips Markdown code-fence wrappers from a provider
// response and trims to the outermost JSON object or array. Providers in
// JSON mode still frequently wrap their output in ```json fences or add
// prose around it; callers parse the sanitized text and surface
// ErrStructuringFailure when parsing still fails.
func SanitizeJSON(raw string) string {
	text := strings.TrimSpace(raw)

	// Strip a leading fence, with or without a language tag.
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	// Trim to the outermost JSON value when prose surrounds it.
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}

	var closer byte
	if text[start] == '{' {
		closer = '}'
	} else {
		closer = ']'
	}

	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return text
	}

	return text[start : end+1]
}
