package devices

import (
	"strings"
	"time"

	"push-dispatcher/internal/domain"
)

// NormalizeTimezone приводит ввод вида "asia/seoul" или "America/new york"
// к имени из базы IANA.
func NormalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", domain.ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil && candidate != "Local" {
		return candidate, nil
	}

	parts := strings.Split(strings.ToLower(candidate), "/")
	for i, part := range parts {
		parts[i] = titleSegments(part)
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil && normalized != "Local" {
		return normalized, nil
	}
	return "", domain.ErrInvalidTimezone
}

// titleSegments делает заглавной первую букву каждого слова через "_" и "-".
func titleSegments(part string) string {
	segments := strings.Split(part, "_")
	for j, segment := range segments {
		pieces := strings.Split(segment, "-")
		for k, piece := range pieces {
			if piece == "" {
				continue
			}
			pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
		}
		segments[j] = strings.Join(pieces, "-")
	}
	return strings.Join(segments, "_")
}
