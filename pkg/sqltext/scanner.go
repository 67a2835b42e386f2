// Package sqltext scans SQL source without parsing it. It knows enough of
// the lexical grammar (comments, quoted strings and identifiers, parameters,
// trigger bodies) to classify a statement by its leading keyword, split a
// script into statements and find placeholders.
package sqltext

type tokenKind int

const (
	tokSpace tokenKind = iota // whitespace and comments
	tokWord
	tokString
	tokIdent // quoted identifier
	tokParam
	tokSemi
	tokOther
)

type token struct {
	kind       tokenKind
	start, end int
}

type scanner struct {
	src          string
	pos          int
	unterminated bool
}

func newScanner(src string) *scanner {
	return &scanner{src: src}
}

func (s *scanner) text(t token) string {
	return s.src[t.start:t.end]
}

func (s *scanner) next() (token, bool) {
	if s.pos >= len(s.src) {
		return token{}, false
	}
	start := s.pos
	c := s.src[s.pos]
	kind := tokOther

	switch {
	case isSpace(c):
		for s.pos < len(s.src) && isSpace(s.src[s.pos]) {
			s.pos++
		}
		kind = tokSpace
	case c == '-' && s.peek(1) == '-':
		for s.pos < len(s.src) && s.src[s.pos] != '\n' {
			s.pos++
		}
		kind = tokSpace
	case c == '/' && s.peek(1) == '*':
		s.pos += 2
		for {
			if s.pos+1 >= len(s.src) {
				s.pos = len(s.src)
				s.unterminated = true
				break
			}
			if s.src[s.pos] == '*' && s.src[s.pos+1] == '/' {
				s.pos += 2
				break
			}
			s.pos++
		}
		kind = tokSpace
	case c == '\'':
		s.quoted('\'')
		kind = tokString
	case c == '"' || c == '`':
		s.quoted(c)
		kind = tokIdent
	case c == '[':
		s.quoted(']')
		kind = tokIdent
	case c == ';':
		s.pos++
		kind = tokSemi
	case c == '?':
		s.pos++
		for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
			s.pos++
		}
		kind = tokParam
	case (c == ':' || c == '@' || c == '$') && isIdentChar(s.peek(1)):
		s.pos++
		for s.pos < len(s.src) && isIdentChar(s.src[s.pos]) {
			s.pos++
		}
		kind = tokParam
	case isIdentChar(c):
		for s.pos < len(s.src) && isIdentChar(s.src[s.pos]) {
			s.pos++
		}
		kind = tokWord
	default:
		s.pos++
	}

	return token{kind: kind, start: start, end: s.pos}, true
}

// quoted consumes a quoted run whose opening byte is at s.pos. A doubled
// closing quote is an escape.
func (s *scanner) quoted(closing byte) {
	s.pos++
	for s.pos < len(s.src) {
		if s.src[s.pos] == closing {
			if closing != ']' && s.peek(1) == closing {
				s.pos += 2
				continue
			}
			s.pos++
			return
		}
		s.pos++
	}
	s.unterminated = true
}

func (s *scanner) peek(off int) byte {
	if s.pos+off < len(s.src) {
		return s.src[s.pos+off]
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isIdentChar follows the engine's rule that any byte >= 0x80 may appear in
// an identifier.
func isIdentChar(c byte) bool {
	return c == '_' || isDigit(c) || (c|0x20 >= 'a' && c|0x20 <= 'z') || c >= 0x80
}
