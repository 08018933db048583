// Package extractor reads a named field out of a JSON message payload.
package extractor

import "github.com/valyala/fastjson"

type Outcome int

const (
	// Found means the field was present; the extracted value accompanies it.
	Found Outcome = iota
	// FieldMissing means the payload parsed but has no such field.
	FieldMissing
	// Unparseable means the payload is not valid JSON at all.
	Unparseable
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case FieldMissing:
		return "field_missing"
	case Unparseable:
		return "unparseable"
	default:
		return "unknown"
	}
}

// Extract parses payload as JSON and returns the value of the top-level
// field coerced to text. JSON strings come back unquoted; every other value
// (numbers, booleans, null, arrays, objects) is returned as its canonical
// JSON text, e.g. `42` or `{"a":1}`.
func Extract(payload []byte, field string) (string, Outcome) {
	v, err := fastjson.ParseBytes(payload)
	if err != nil {
		return "", Unparseable
	}

	fv := v.Get(field)
	if fv == nil {
		return "", FieldMissing
	}

	if fv.Type() == fastjson.TypeString {
		return string(fv.GetStringBytes()), Found
	}
	return fv.String(), Found
}
