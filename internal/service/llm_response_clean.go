package service

import "strings"

// cleanReplyText quita BOM y espacios sobrantes antes de entregar la respuesta.
func cleanReplyText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// BOM (por si acaso)
	s = strings.TrimPrefix(s, "\uFEFF")
	return strings.TrimSpace(s)
}
