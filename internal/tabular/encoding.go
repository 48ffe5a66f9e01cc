package tabular

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Canonical encoding names produced by the sniffer.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF16LE = "utf-16le"
	EncodingUTF16BE = "utf-16be"
	EncodingLatin1  = "iso-8859-1"
	EncodingCP1252  = "windows-1252"
)

// DefaultEncoding is used when no candidate decodes and the detector has no
// confident answer.
const DefaultEncoding = EncodingUTF8

// MinDetectorConfidence is the lowest chardet confidence (0-100) accepted.
const MinDetectorConfidence = 50

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// encodingCandidate is one entry of the ordered trial list.
type encodingCandidate struct {
	name    string
	decodes func(sample []byte) bool
}

// candidates are tried in order; the first that accepts the sample wins.
var candidates = []encodingCandidate{
	{EncodingUTF8, decodesUTF8},
	{EncodingUTF16LE, func(b []byte) bool { return decodesUTF16(b, false) }},
	{EncodingUTF16BE, func(b []byte) bool { return decodesUTF16(b, true) }},
	{EncodingLatin1, decodesLatin1},
	{EncodingCP1252, decodesCP1252},
}

// DetectEncoding picks the encoding of a leading chunk of file content.
// It never fails: with no candidate and no confident detector answer it
// returns DefaultEncoding.
func DetectEncoding(sample []byte) string {
	switch {
	case bytes.HasPrefix(sample, bomUTF8):
		return EncodingUTF8
	case bytes.HasPrefix(sample, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(sample, bomUTF16BE):
		return EncodingUTF16BE
	}

	for _, c := range candidates {
		if c.decodes(sample) {
			return c.name
		}
	}

	if name, ok := detectWithChardet(sample); ok {
		return name
	}
	return DefaultEncoding
}

// EncodingByName resolves a sniffed or user-supplied encoding name.
func EncodingByName(name string) (encoding.Encoding, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EncodingUTF8, "utf8":
		return unicode.UTF8BOM, true
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), true
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), true
	case EncodingLatin1, "latin-1", "latin1":
		return charmap.ISO8859_1, true
	case EncodingCP1252, "cp1252":
		return charmap.Windows1252, true
	}

	if enc, err := htmlindex.Get(name); err == nil && enc != nil {
		return enc, true
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, true
	}
	return nil, false
}

// decodesUTF8 accepts valid UTF-8 without NUL bytes. A multi-byte sequence
// cut off by the end of the sample is not held against it.
func decodesUTF8(sample []byte) bool {
	if bytes.IndexByte(sample, 0) >= 0 {
		return false
	}
	return utf8.Valid(sample[:len(sample)-incompleteTrailingBytes(sample)])
}

// decodesUTF16 accepts BOM-less UTF-16 when NUL bytes sit almost exclusively
// on one side of each code unit and surrogates pair up.
func decodesUTF16(sample []byte, bigEndian bool) bool {
	n := len(sample) &^ 1
	if n < 4 {
		return false
	}

	var evenZeros, oddZeros int
	for i := 0; i < n; i += 2 {
		if sample[i] == 0 {
			evenZeros++
		}
		if sample[i+1] == 0 {
			oddZeros++
		}
	}
	units := n / 2
	hi, lo := oddZeros, evenZeros
	if bigEndian {
		hi, lo = evenZeros, oddZeros
	}
	if hi*10 < units*4 || lo*10 > units {
		return false
	}

	pendingHigh := false
	for i := 0; i < n; i += 2 {
		u := uint16(sample[i]) | uint16(sample[i+1])<<8
		if bigEndian {
			u = uint16(sample[i])<<8 | uint16(sample[i+1])
		}
		switch {
		case u >= 0xD800 && u <= 0xDBFF:
			if pendingHigh {
				return false
			}
			pendingHigh = true
		case u >= 0xDC00 && u <= 0xDFFF:
			if !pendingHigh {
				return false
			}
			pendingHigh = false
		default:
			if pendingHigh {
				return false
			}
		}
	}
	return true
}

// decodesLatin1 accepts single-byte text with no C1 control bytes. Those
// bytes are printable in CP1252 and nearly always mean the file is CP1252.
func decodesLatin1(sample []byte) bool {
	for _, b := range sample {
		if b == 0 || (b >= 0x80 && b <= 0x9F) {
			return false
		}
	}
	return true
}

// decodesCP1252 rejects the five byte values CP1252 leaves undefined.
func decodesCP1252(sample []byte) bool {
	for _, b := range sample {
		switch b {
		case 0, 0x81, 0x8D, 0x8F, 0x90, 0x9D:
			return false
		}
	}
	return true
}

// detectWithChardet asks the universal detector and keeps confident answers
// that map to an encoding this package can decode.
func detectWithChardet(sample []byte) (string, bool) {
	if len(sample) == 0 {
		return "", false
	}

	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil || res.Confidence < MinDetectorConfidence {
		return "", false
	}

	name := strings.ToLower(res.Charset)
	if _, ok := EncodingByName(name); !ok {
		return "", false
	}
	return name, true
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		// Anything but a continuation byte ends the scan.
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}
