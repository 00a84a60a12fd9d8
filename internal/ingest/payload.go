package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errNotObject = errors.New("payload must be a JSON object")

// Field is one loosely typed value from the submitted JSON object. The zero
// Field means the key was absent.
type Field struct {
	raw json.RawMessage
}

// Present reports whether the key appeared in the payload, even as null.
func (f Field) Present() bool {
	return f.raw != nil
}

// IsNull reports whether the key is absent or explicitly null.
func (f Field) IsNull() bool {
	return f.raw == nil || bytes.Equal(f.raw, []byte("null"))
}

// AsString returns the value when the field holds a JSON string.
func (f Field) AsString() (string, bool) {
	if len(f.raw) == 0 || f.raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(f.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Text renders the field for a free-text column: strings as-is, null or
// absent as "", any other JSON value as its literal text.
func (f Field) Text() string {
	if s, ok := f.AsString(); ok {
		return s
	}
	if f.IsNull() {
		return ""
	}
	return string(f.raw)
}

// Falsy reports whether the value is absent, null, false, zero, an empty
// string, an empty array or an empty object.
func (f Field) Falsy() bool {
	if f.IsNull() {
		return true
	}
	switch f.raw[0] {
	case '"':
		s, _ := f.AsString()
		return s == ""
	case 'f':
		return true
	case 't':
		return false
	case '[':
		var v []json.RawMessage
		return json.Unmarshal(f.raw, &v) == nil && len(v) == 0
	case '{':
		var v map[string]json.RawMessage
		return json.Unmarshal(f.raw, &v) == nil && len(v) == 0
	}
	var n float64
	return json.Unmarshal(f.raw, &n) == nil && n == 0
}

// Payload is the typed view of an ingestion body. Wire keys are camelCase and
// matched exactly; unknown keys (including any client supplied "ip") are ignored.
type Payload struct {
	Time         Field
	URL          Field
	Method       Field
	Type         Field
	Initiator    Field
	TabID        Field
	RequestID    Field
	RequestBody  Field
	Response     Field
	StatusCode   Field
	Source       Field
	HTML         Field
	ResponseTime Field
	Employee     Field
	PluginKey    Field
}

// ParsePayload decodes body into a Payload. An empty body is an empty object.
func ParsePayload(body []byte) (Payload, error) {
	if len(body) == 0 {
		return Payload{}, nil
	}
	var bag map[string]json.RawMessage
	if err := json.Unmarshal(body, &bag); err != nil {
		return Payload{}, err
	}
	if bag == nil {
		return Payload{}, errNotObject
	}
	field := func(key string) Field {
		return Field{raw: bag[key]}
	}
	return Payload{
		Time:         field("time"),
		URL:          field("url"),
		Method:       field("method"),
		Type:         field("type"),
		Initiator:    field("initiator"),
		TabID:        field("tabId"),
		RequestID:    field("requestId"),
		RequestBody:  field("requestBody"),
		Response:     field("response"),
		StatusCode:   field("statusCode"),
		Source:       field("source"),
		HTML:         field("html"),
		ResponseTime: field("responseTime"),
		Employee:     field("employee"),
		PluginKey:    field("pluginKey"),
	}, nil
}
