package pdfclean

import (
	"bytes"
	"encoding/hex"
	"strings"
	"unicode/utf16"
)

type tokenKind int

const (
	tokOther tokenKind = iota
	tokLiteral
	tokHex
	tokArrayOpen
	tokArrayClose
)

// token is one lexical element of a content stream. For strings, text holds
// the decoded value; for everything else the raw bytes.
type token struct {
	kind       tokenKind
	start, end int
	text       string
}

func (t token) isString() bool {
	return t.kind == tokLiteral || t.kind == tokHex
}

// show is one text-showing operation and the bytes that empty it.
type show struct {
	text       string
	start, end int
	blank      string
}

// BlankText empties every text-showing operation (Tj, ', " and TJ) that
// carries part of needle and returns the rewritten content with the number
// of needle occurrences. Shows are matched on the joined text of their
// BT/ET block, so a word split over several operators is still found.
// Literal and hex strings are both decoded; inline image data is skipped.
func BlankText(content []byte, needle string) ([]byte, int) {
	if needle == "" {
		return content, 0
	}
	toks := tokenize(content)

	var (
		shows []show
		edits []show
		hits  int
	)
	flush := func() {
		n, blanked := matchShows(shows, needle)
		hits += n
		edits = append(edits, blanked...)
		shows = shows[:0]
	}

	arrayStart := -1
	for i, t := range toks {
		switch t.kind {
		case tokArrayOpen:
			arrayStart = i
			continue
		case tokOther:
		default:
			continue
		}

		switch t.text {
		case "BT", "ET":
			flush()
		case "Tj", "'", `"`:
			if i > 0 && toks[i-1].isString() {
				s := toks[i-1]
				blank := "()"
				if s.kind == tokHex {
					blank = "<>"
				}
				shows = append(shows, show{text: s.text, start: s.start, end: s.end, blank: blank})
			}
		case "TJ":
			if i > 0 && toks[i-1].kind == tokArrayClose && arrayStart >= 0 && arrayStart < i-1 {
				var text strings.Builder
				for _, s := range toks[arrayStart+1 : i-1] {
					if s.isString() {
						text.WriteString(s.text)
					}
				}
				shows = append(shows, show{text: text.String(), start: toks[arrayStart].start, end: toks[i-1].end, blank: "[]"})
			}
		}
	}
	flush()

	if hits == 0 {
		return content, 0
	}
	var out bytes.Buffer
	last := 0
	for _, e := range edits {
		out.Write(content[last:e.start])
		out.WriteString(e.blank)
		last = e.end
	}
	out.Write(content[last:])
	return out.Bytes(), hits
}

// matchShows finds needle in the joined text of shows and returns the
// occurrence count and the shows overlapping any occurrence.
func matchShows(shows []show, needle string) (int, []show) {
	if len(shows) == 0 {
		return 0, nil
	}
	starts := make([]int, len(shows))
	var all strings.Builder
	for i, s := range shows {
		starts[i] = all.Len()
		all.WriteString(s.text)
	}
	text := all.String()

	hit := make([]bool, len(shows))
	n := 0
	for from := 0; ; {
		k := strings.Index(text[from:], needle)
		if k < 0 {
			break
		}
		lo, hi := from+k, from+k+len(needle)
		n++
		for i, s := range shows {
			if starts[i] < hi && lo < starts[i]+len(s.text) {
				hit[i] = true
			}
		}
		from = hi
	}

	var blanked []show
	for i, s := range shows {
		if hit[i] {
			blanked = append(blanked, s)
		}
	}
	return n, blanked
}

func tokenize(b []byte) []token {
	var toks []token
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case isSpace(c):
			i++
		case c == '%':
			for i < len(b) && b[i] != '\n' && b[i] != '\r' {
				i++
			}
		case c == '(':
			end, closed := literalEnd(b, i)
			inner := b[i+1 : end]
			if closed {
				inner = b[i+1 : end-1]
			}
			toks = append(toks, token{kind: tokLiteral, start: i, end: end, text: unescape(inner)})
			i = end
		case c == '<' && i+1 < len(b) && b[i+1] == '<', c == '>' && i+1 < len(b) && b[i+1] == '>':
			toks = append(toks, token{kind: tokOther, start: i, end: i + 2, text: string(b[i : i+2])})
			i += 2
		case c == '<':
			end := len(b)
			if k := bytes.IndexByte(b[i:], '>'); k >= 0 {
				end = i + k + 1
			}
			inner := b[i+1 : end]
			if end <= len(b) && b[end-1] == '>' {
				inner = b[i+1 : end-1]
			}
			toks = append(toks, token{kind: tokHex, start: i, end: end, text: decodeHex(inner)})
			i = end
		case c == '[':
			toks = append(toks, token{kind: tokArrayOpen, start: i, end: i + 1})
			i++
		case c == ']':
			toks = append(toks, token{kind: tokArrayClose, start: i, end: i + 1})
			i++
		case c == ')' || c == '>' || c == '{' || c == '}':
			i++
		default:
			j := i + 1
			for j < len(b) && !isSpace(b[j]) && !isDelim(b[j]) {
				j++
			}
			toks = append(toks, token{kind: tokOther, start: i, end: j, text: string(b[i:j])})
			i = j
			if toks[len(toks)-1].text == "ID" {
				i = skipInlineImage(b, i)
			}
		}
	}
	return toks
}

// literalEnd returns the index just past the parenthesis closing the
// literal string opened at b[i].
func literalEnd(b []byte, i int) (int, bool) {
	depth := 0
	for j := i; j < len(b); j++ {
		switch b[j] {
		case '\\':
			j++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return j + 1, true
			}
		}
	}
	return len(b), false
}

// skipInlineImage returns the index past the EI that ends inline image data
// starting at b[i].
func skipInlineImage(b []byte, i int) int {
	for j := i + 1; j+1 < len(b); j++ {
		if b[j] == 'E' && b[j+1] == 'I' && isSpace(b[j-1]) &&
			(j+2 == len(b) || isSpace(b[j+2]) || isDelim(b[j+2])) {
			return j + 2
		}
	}
	return len(b)
}

// unescape decodes the body of a literal string.
func unescape(s []byte) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		case '\n':
		default:
			if e < '0' || e > '7' {
				b.WriteByte(e)
				continue
			}
			v := int(e - '0')
			for k := 0; k < 2 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; k++ {
				i++
				v = v*8 + int(s[i]-'0')
			}
			b.WriteByte(byte(v))
		}
	}
	return b.String()
}

// decodeHex decodes a hex string body. Whitespace is ignored and an odd
// final digit is padded with 0. UTF-16BE text, with a byte order mark or
// with every high byte zero, is folded to its code points.
func decodeHex(s []byte) string {
	digits := make([]byte, 0, len(s)+1)
	for _, c := range s {
		if !isSpace(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	raw := make([]byte, len(digits)/2)
	if _, err := hex.Decode(raw, digits); err != nil {
		return ""
	}

	if len(raw) < 2 || len(raw)%2 == 1 {
		return string(raw)
	}
	bom := raw[0] == 0xfe && raw[1] == 0xff
	if bom {
		raw = raw[2:]
	} else {
		for i := 0; i < len(raw); i += 2 {
			if raw[i] != 0 {
				return string(raw)
			}
		}
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return string(utf16.Decode(units))
}

func isSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
