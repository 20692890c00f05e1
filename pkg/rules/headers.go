package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"content-harvester/pkg/utils"
)

// ParseRequestHeaders accepts either a JSON object or raw "Key: value" lines, as copied
// from a browser's network panel, and returns the same map for both.
// Blank input yields an empty map.
func ParseRequestHeaders(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]string{}, nil
	}

	if strings.HasPrefix(raw, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err == nil {
			return headersFromJSON(obj)
		}
		// Not valid JSON after all; try the line format
	}

	headers := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}

	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: request headers are neither a JSON object nor 'Key: value' lines", utils.ErrValidation)
	}
	return headers, nil
}

func headersFromJSON(obj map[string]any) (map[string]string, error) {
	headers := make(map[string]string, len(obj))
	for k, v := range obj {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		switch val := v.(type) {
		case string:
			headers[key] = strings.TrimSpace(val)
		case float64, bool:
			headers[key] = fmt.Sprint(val)
		case nil:
			headers[key] = ""
		default:
			return nil, fmt.Errorf("%w: header '%s' must be a string", utils.ErrValidation, key)
		}
	}
	return headers, nil
}
