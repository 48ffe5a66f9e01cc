package tabular

import (
	"bufio"
	"io"
	"os"
	"strings"

	"golang.org/x/text/transform"
)

// Delimiter candidates in preference order. Ties are broken by this order.
var DelimiterCandidates = []rune{'\t', ',', '|', ';'}

// DefaultDelimiter is used when no candidate occurs in the sample.
const DefaultDelimiter = ','

// Sniffer defaults.
const (
	DefaultSampleBytes = 64 * 1024
	DefaultSampleLines = 20
)

// consistencyFloor is the lowest share of sample lines that must agree on a
// delimiter's per-line count for the consistency heuristic to accept it.
const consistencyFloor = 0.9

// Sniffed is the result of probing a file.
type Sniffed struct {
	Encoding  string `json:"encoding"`
	Delimiter rune   `json:"-"`
}

// DelimiterName returns a printable form of the delimiter.
func (s Sniffed) DelimiterName() string {
	return DelimiterName(s.Delimiter)
}

// DelimiterName returns a printable name for a delimiter rune.
func DelimiterName(r rune) string {
	switch r {
	case '\t':
		return "tab"
	case ',':
		return "comma"
	case '|':
		return "pipe"
	case ';':
		return "semicolon"
	default:
		return string(r)
	}
}

// ParseDelimiter accepts a delimiter name or a single character.
func ParseDelimiter(s string) (rune, bool) {
	switch strings.ToLower(s) {
	case "tab", `\t`, "\t":
		return '\t', true
	case "comma", ",":
		return ',', true
	case "pipe", "|":
		return '|', true
	case "semicolon", ";":
		return ';', true
	}
	r := []rune(s)
	if len(r) == 1 && r[0] != '"' && r[0] != '\n' && r[0] != '\r' {
		return r[0], true
	}
	return 0, false
}

// SniffOptions bounds how much of a file the sniffer reads.
type SniffOptions struct {
	SampleBytes int
	SampleLines int
}

func (o SniffOptions) withDefaults() SniffOptions {
	if o.SampleBytes <= 0 {
		o.SampleBytes = DefaultSampleBytes
	}
	if o.SampleLines <= 0 {
		o.SampleLines = DefaultSampleLines
	}
	return o
}

// Sniff guesses the encoding and field delimiter of the file at path.
// It only reads; any failure to read yields the defaults so the loader can
// report the real access problem.
func Sniff(path string) Sniffed {
	return SniffWith(path, SniffOptions{})
}

// SniffWith is Sniff with explicit sample bounds.
func SniffWith(path string, opts SniffOptions) Sniffed {
	opts = opts.withDefaults()
	out := Sniffed{Encoding: DefaultEncoding, Delimiter: DefaultDelimiter}

	f, err := os.Open(path)
	if err != nil {
		return out
	}
	defer f.Close()

	sample, err := io.ReadAll(io.LimitReader(f, int64(opts.SampleBytes)))
	if err != nil {
		return out
	}

	out.Encoding = DetectEncoding(sample)
	text := decodeSample(sample, out.Encoding)
	if len(sample) == opts.SampleBytes {
		// Drop the line cut off by the sample boundary.
		if i := strings.LastIndexByte(text, '\n'); i > 0 {
			text = text[:i+1]
		}
	}
	out.Delimiter = SniffDelimiter(text, opts.SampleLines)
	return out
}

// decodeSample converts a raw sample to UTF-8 text using the sniffed
// encoding. Undecodable input degrades to the raw bytes.
func decodeSample(sample []byte, name string) string {
	enc, ok := EncodingByName(name)
	if !ok {
		return string(sample)
	}
	text, _, err := transform.Bytes(enc.NewDecoder(), sample)
	if err != nil {
		return string(sample)
	}
	return string(text)
}

// SniffDelimiter picks the field delimiter from the first maxLines non-blank
// lines of text.
//
// A candidate is consistent when (outside double quotes) it occurs the same
// non-zero number of times on at least 90% of the sampled lines. Among
// consistent candidates the earliest in DelimiterCandidates wins. With no
// consistent candidate the raw occurrence counts decide, and a sample with
// none of the candidates yields DefaultDelimiter.
func SniffDelimiter(text string, maxLines int) rune {
	lines := sampleLines(text, maxLines)
	if len(lines) == 0 {
		return DefaultDelimiter
	}

	for _, d := range DelimiterCandidates {
		if consistent(lines, d) {
			return d
		}
	}

	best, bestCount := rune(0), 0
	for _, d := range DelimiterCandidates {
		n := 0
		for _, line := range lines {
			n += strings.Count(line, string(d))
		}
		if n > bestCount {
			best, bestCount = d, n
		}
	}
	if bestCount == 0 {
		return DefaultDelimiter
	}
	return best
}

// consistent reports whether d splits enough lines into the same number of
// fields.
func consistent(lines []string, d rune) bool {
	freq := make(map[int]int)
	for _, line := range lines {
		freq[countUnquoted(line, d)]++
	}

	modeCount, modeLines := 0, 0
	for count, n := range freq {
		if n > modeLines || (n == modeLines && count > modeCount) {
			modeCount, modeLines = count, n
		}
	}
	if modeCount == 0 {
		return false
	}
	return float64(modeLines)/float64(len(lines)) >= consistencyFloor
}

// countUnquoted counts d outside double-quoted sections of line.
func countUnquoted(line string, d rune) int {
	inQuotes := false
	n := 0
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == d && !inQuotes:
			n++
		}
	}
	return n
}

// sampleLines returns up to limit non-blank lines of text.
func sampleLines(text string, limit int) []string {
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), len(text)+1)

	var lines []string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return lines
}
