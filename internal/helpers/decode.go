package helpers

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
)

// ErrNoStructuredData is returned when neither decode stage produced a value.
var ErrNoStructuredData = errors.New("no structured data in completion text")

// DecodeLenient decodes completion text into out, which must be a non-nil pointer.
// The text is first decoded as-is (after stripping markdown code fences); if that
// fails, the first balanced {...} span is decoded instead. out is left untouched
// when both stages fail.
func DecodeLenient(text string, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("decode target must be a non-nil pointer")
	}
	text = stripFences(text)
	if text == "" {
		return ErrNoStructuredData
	}
	if decodeInto(text, rv) {
		return nil
	}
	span, ok := FirstBalancedObject(text)
	if !ok || !decodeInto(span, rv) {
		return ErrNoStructuredData
	}
	return nil
}

// DecodeOr is DecodeLenient with a caller-supplied default for total failure.
func DecodeOr[T any](text string, def T) T {
	var v T
	if err := DecodeLenient(text, &v); err != nil {
		return def
	}
	return v
}

// decodeInto unmarshals into a fresh value and only assigns it on success, so a
// failed decode never leaves the target partially populated.
func decodeInto(text string, target reflect.Value) bool {
	fresh := reflect.New(target.Elem().Type())
	if err := json.Unmarshal([]byte(text), fresh.Interface()); err != nil {
		return false
	}
	target.Elem().Set(fresh.Elem())
	return true
}

// FirstBalancedObject returns the first {...} span whose braces balance, ignoring
// braces inside JSON string literals.
func FirstBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
