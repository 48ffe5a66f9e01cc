// Package tools holds the small standalone utilities served next to the
// column search: a Base64 codec, a Kubernetes CronJob manifest generator and
// a runner for dead-letter-queue replay JARs.
package tools

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrEmptyInput is returned when there is nothing to encode or decode.
var ErrEmptyInput = errors.New("input is empty")

// Base64Encode encodes data with the standard or URL-safe alphabet, padded.
func Base64Encode(data []byte, urlSafe bool) string {
	if urlSafe {
		return base64.URLEncoding.EncodeToString(data)
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Base64Decode decodes s. Whitespace anywhere and missing padding are
// tolerated, and the URL-safe alphabet is used when s contains '-' or '_'
// even if urlSafe is false.
func Base64Decode(s string, urlSafe bool) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, ErrEmptyInput
	}

	enc := base64.RawStdEncoding
	if urlSafe || strings.ContainsAny(s, "-_") {
		enc = base64.RawURLEncoding
	}

	out, err := enc.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return out, nil
}
