package ingest

import (
	"encoding/base64"
	"strings"
)

var lineBreaks = strings.NewReplacer("\n", "", "\r", "")

// DecodeBase64 decodes a binary payload field. Anything that is not a
// non-empty JSON string decodes to empty bytes. Senders that wrap lines or
// drop the trailing padding are accepted; input that is still not valid
// base64 after that returns an error.
func DecodeBase64(f Field) ([]byte, error) {
	s, ok := f.AsString()
	if !ok || s == "" {
		return []byte{}, nil
	}
	s = lineBreaks.Replace(strings.TrimSpace(s))
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return b, nil
}
