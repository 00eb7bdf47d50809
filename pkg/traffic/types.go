package traffic

import "strings"

// Header wraps a header map with case-insensitive access. Keys are
// stored lowercased.
type Header map[string]string

// FromMap builds a Header from a raw header map.
func FromMap(m map[string]string) Header {
	h := make(Header, len(m))
	for k, v := range m {
		h[strings.ToLower(k)] = v
	}
	return h
}

// Get returns the value for key, or "" when absent.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set stores value under the lowercased key.
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Del removes key.
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// Map returns the underlying map, never nil.
func (h Header) Map() map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}

// IsTextual reports whether a content type describes a text-like payload
// (plain text, JSON, XML, script). Binary bodies are never retrieved.
func IsTextual(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text") ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "javascript")
}
