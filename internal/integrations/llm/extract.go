package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// ExtractJSON pulls the JSON payload out of a model reply. It tries a fenced
// code block, then the outermost bracketed span, then returns the trimmed
// text unchanged so the decoder can report what went wrong.
func ExtractJSON(text string) string {
	if s, ok := ExtractFenced(text); ok {
		return s
	}
	if s, ok := ExtractBracketed(text); ok {
		return s
	}
	return strings.TrimSpace(text)
}

// ExtractFenced returns the contents of the first ``` or ```json block.
func ExtractFenced(text string) (string, bool) {
	m := fencedBlockRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractBracketed returns the span from the first '[' to the last ']'.
// The span from the first '{' to the last '}' is used instead only when it
// opens before any '[', decodes cleanly and the array span is not a list
// of objects, so a bare object with list fields survives while prose that
// echoes a format like {id, score} ahead of the real array does not win.
func ExtractBracketed(text string) (string, bool) {
	arr, hasArr := span(text, "[", "]")
	obj, hasObj := span(text, "{", "}")
	first := strings.Index(text, "[")
	objOuter := hasObj && (first < 0 || strings.Index(text, "{") < first)

	switch {
	case hasArr && isObjectArray(arr):
		return arr, true
	case objOuter && json.Valid([]byte(obj)):
		return obj, true
	case hasArr:
		return arr, true
	case objOuter:
		return obj, true
	}
	return "", false
}

func span(text, open, close string) (string, bool) {
	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(text, close)
	if end < start {
		return "", false
	}
	return text[start : end+1], true
}

func isObjectArray(s string) bool {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(s), &elems); err != nil {
		return false
	}
	for _, e := range elems {
		if len(e) == 0 || e[0] != '{' {
			return false
		}
	}
	return true
}
