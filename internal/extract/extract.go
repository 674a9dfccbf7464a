package extract

import (
	"encoding/json"
	"strings"
)

// DefaultFilename is assigned to extracted documents when the backend does
// not name the artifact itself.
const DefaultFilename = "game.html"

const (
	fenceOpen  = "```html"
	fenceClose = "```"
	docOpen    = "<!DOCTYPE html>"
	docClose   = "</html>"
)

// Code locates a generated document inside raw backend output. It prefers the
// first html-tagged fence; absent one, it falls back to the span from the
// first document-start marker through the last closing tag, inclusive. A
// response with no recognizable document returns found=false, which is a
// legitimate outcome, not an error.
func Code(raw string) (code string, filename string, found bool) {
	if i := strings.Index(raw, fenceOpen); i >= 0 {
		rest := raw[i+len(fenceOpen):]
		if j := strings.Index(rest, fenceClose); j >= 0 {
			return strings.TrimSpace(rest[:j]), DefaultFilename, true
		}
	}
	if start := strings.Index(raw, docOpen); start >= 0 {
		if end := strings.LastIndex(raw, docClose); end > start {
			return raw[start : end+len(docClose)], DefaultFilename, true
		}
	}
	return "", "", false
}

// SummaryAndStructured derives the human-readable summary for a response and
// any trailing structured object the backend appended. The summary defaults
// to the raw text; a "summary" field in the trailing object overrides it.
// The extra map is nil when no parseable trailing object exists.
func SummaryAndStructured(raw string) (summary string, extra map[string]any) {
	summary = raw
	extra, ok := trailingObject(raw)
	if !ok {
		return summary, nil
	}
	if s, ok := StringField(extra, "summary"); ok {
		summary = s
	}
	return summary, extra
}

// StringField reads a non-empty string field out of a structured extra map.
func StringField(extra map[string]any, key string) (string, bool) {
	if extra == nil {
		return "", false
	}
	s, ok := extra[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// trailingObject finds the last balanced {...} span: the rightmost closing
// brace, then candidate opening braces scanned right to left until one yields
// a valid JSON object. Anything unparsable means no enrichment.
func trailingObject(raw string) (map[string]any, bool) {
	end := strings.LastIndex(raw, "}")
	if end < 0 {
		return nil, false
	}
	for start := strings.LastIndex(raw[:end], "{"); start >= 0; start = strings.LastIndex(raw[:start], "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err == nil {
			return obj, true
		}
	}
	return nil, false
}
