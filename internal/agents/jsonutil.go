package agents

import (
	"encoding/json"
	"strings"
)

// decodeJSON parses a model response that should be JSON but may arrive
// wrapped in a markdown fence or surrounded by prose.
func decodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	body := text
	if i := strings.Index(body, "```"); i >= 0 {
		body = body[i+3:]
		body = strings.TrimPrefix(body, "json")
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
	}
	body = strings.TrimSpace(body)
	if err := json.Unmarshal([]byte(body), v); err == nil {
		return nil
	}

	start := strings.IndexAny(body, "{[")
	end := strings.LastIndexAny(body, "}]")
	if start < 0 || end <= start {
		return json.Unmarshal([]byte(body), v)
	}
	return json.Unmarshal([]byte(body[start:end+1]), v)
}
