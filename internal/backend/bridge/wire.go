package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gameforge/forge/internal/backend"
)

// Sentinel markers framing the structured payload inside the generator's
// otherwise unstructured stdout stream.
const (
	resultStart = "RESULT_START"
	resultEnd   = "RESULT_END"
	errorStart  = "ERROR_START"
	errorEnd    = "ERROR_END"
)

// wirePayload is the JSON envelope the generator emits between sentinels.
// Files stays raw so key order can be recovered during decoding.
type wirePayload struct {
	Success bool            `json:"success"`
	Files   json.RawMessage `json:"files"`
	Error   string          `json:"error"`
	Summary string          `json:"summary"`
}

// wireFile is one generated file in the order the generator reported it.
type wireFile struct {
	Name    string
	Content string
}

// parseStdout recovers the structured payload from stdout: a RESULT-framed
// JSON object, else an ERROR-framed one, else the whole stream parsed as
// JSON. Anything else is malformed output, returned with the raw stream
// attached for diagnostics.
func parseStdout(stdout string) (*wirePayload, *backend.Error) {
	if body, ok := between(stdout, resultStart, resultEnd); ok {
		return decodePayload(body, stdout)
	}
	if body, ok := between(stdout, errorStart, errorEnd); ok {
		return decodePayload(body, stdout)
	}
	return decodePayload(stdout, stdout)
}

func between(s, start, end string) (string, bool) {
	i := strings.Index(s, start)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:j]), true
}

func decodePayload(body, raw string) (*wirePayload, *backend.Error) {
	var payload wirePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, &backend.Error{
			Kind:    backend.KindMalformedOutput,
			Message: fmt.Sprintf("decode generator payload: %v", err),
			Raw:     raw,
		}
	}
	return &payload, nil
}

// decodeFiles walks the files object with a token decoder so the generator's
// reported key order survives; map decoding would lose it.
func decodeFiles(raw json.RawMessage) ([]wireFile, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read files object: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("files payload is %v, not an object", tok)
	}

	var files []wireFile
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read file name: %w", err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("file name is %v, not a string", keyTok)
		}
		var content string
		if err := dec.Decode(&content); err != nil {
			return nil, fmt.Errorf("read content of %q: %w", name, err)
		}
		files = append(files, wireFile{Name: name, Content: content})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("close files object: %w", err)
	}
	return files, nil
}

// selectArtifact picks the primary generated file: the first entry with a
// markup extension, else the first entry in reported order.
func selectArtifact(files []wireFile) (wireFile, bool) {
	for _, f := range files {
		if strings.HasSuffix(strings.ToLower(f.Name), ".html") {
			return f, true
		}
	}
	if len(files) > 0 {
		return files[0], true
	}
	return wireFile{}, false
}
