package sqltext

import (
	"strconv"
	"strings"
)

// Kind is the class of a statement as decided by its leading keyword.
type Kind int

const (
	KindOther Kind = iota
	KindSelect
	KindDML
	KindDDL
	KindTransaction
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindDML:
		return "DML"
	case KindDDL:
		return "DDL"
	case KindTransaction:
		return "TRANSACTION"
	default:
		return "OTHER"
	}
}

// Keywords returns up to n leading bare words of sql, lowercased. Scanning
// stops at the first token that is not a word.
func Keywords(sql string, n int) []string {
	s := newScanner(sql)
	words := make([]string, 0, n)
	for len(words) < n {
		tok, ok := s.next()
		if !ok {
			break
		}
		if tok.kind == tokSpace {
			continue
		}
		if tok.kind != tokWord {
			break
		}
		words = append(words, strings.ToLower(s.text(tok)))
	}
	return words
}

// Keyword returns the leading keyword of sql, lowercased, or "".
func Keyword(sql string) string {
	if w := Keywords(sql, 1); len(w) > 0 {
		return w[0]
	}
	return ""
}

// Classify reports the class of the first statement in sql. A statement
// led by a WITH clause is classed by the verb that follows its common table
// expressions.
func Classify(sql string) Kind {
	keyword := Keyword(sql)
	if keyword == "with" {
		keyword = mainVerb(sql)
	}
	switch keyword {
	case "select", "values":
		return KindSelect
	case "insert", "update", "delete", "replace":
		return KindDML
	case "create", "drop", "alter":
		return KindDDL
	case "begin", "commit", "end", "rollback", "savepoint", "release":
		return KindTransaction
	default:
		return KindOther
	}
}

// mainVerb returns the first select, values, insert, update, delete or
// replace outside parentheses, lowercased, or "".
func mainVerb(sql string) string {
	s := newScanner(sql)
	depth := 0
	for {
		tok, ok := s.next()
		if !ok || tok.kind == tokSemi {
			return ""
		}
		switch tok.kind {
		case tokOther:
			switch s.text(tok) {
			case "(":
				depth++
			case ")":
				depth = max(depth-1, 0)
			}
		case tokWord:
			if depth > 0 {
				continue
			}
			switch w := strings.ToLower(s.text(tok)); w {
			case "select", "values", "insert", "update", "delete", "replace":
				return w
			}
		}
	}
}

// triggerTracker follows CREATE TRIGGER bodies, inside which a semicolon
// only ends the statement when it follows END.
type triggerTracker struct {
	words     []string
	inTrigger bool
	lastWord  string
}

func (t *triggerTracker) word(w string) {
	w = strings.ToLower(w)
	if len(t.words) < 3 {
		t.words = append(t.words, w)
		if !t.inTrigger && isTriggerStart(t.words) {
			t.inTrigger = true
		}
	}
	t.lastWord = w
}

func (t *triggerTracker) other() {
	t.lastWord = ""
}

// semi reports whether a semicolon at this point ends the statement.
func (t *triggerTracker) semi() bool {
	if t.inTrigger && t.lastWord != "end" {
		t.lastWord = ""
		return false
	}
	*t = triggerTracker{}
	return true
}

func isTriggerStart(words []string) bool {
	if len(words) < 2 || words[0] != "create" {
		return false
	}
	if words[1] == "trigger" {
		return true
	}
	return len(words) == 3 && (words[1] == "temp" || words[1] == "temporary") && words[2] == "trigger"
}

// Split returns the first statement of sql, including its terminating
// semicolon, and the remaining text. Without a terminator the whole input is
// the statement.
func Split(sql string) (stmt, tail string) {
	s := newScanner(sql)
	var tr triggerTracker
	for {
		tok, ok := s.next()
		if !ok {
			return sql, ""
		}
		switch tok.kind {
		case tokSpace:
		case tokWord:
			tr.word(s.text(tok))
		case tokSemi:
			if tr.semi() {
				return sql[:tok.end], sql[tok.end:]
			}
		default:
			tr.other()
		}
	}
}

// Complete reports whether sql ends with a complete statement: a terminating
// semicolon outside any string, comment or trigger body, followed by nothing
// but whitespace and comments.
func Complete(sql string) bool {
	s := newScanner(sql)
	var tr triggerTracker
	complete := false
	for {
		tok, ok := s.next()
		if !ok {
			break
		}
		switch tok.kind {
		case tokSpace:
		case tokSemi:
			if tr.semi() {
				complete = true
			}
		case tokWord:
			complete = false
			tr.word(s.text(tok))
		default:
			complete = false
			tr.other()
		}
	}
	return complete && !s.unterminated
}

// IsBlank reports whether sql holds nothing but whitespace, comments and
// empty statements.
func IsBlank(sql string) bool {
	s := newScanner(sql)
	for {
		tok, ok := s.next()
		if !ok {
			return true
		}
		if tok.kind != tokSpace && tok.kind != tokSemi {
			return false
		}
	}
}

// Parameters lists the placeholders of sql by engine index: element i holds
// the name of parameter i+1, or "" for an anonymous "?". Numbered
// placeholders keep their "?NNN" text and named ones their prefix.
func Parameters(sql string) []string {
	s := newScanner(sql)
	var names []string
	seen := make(map[string]bool)
	for {
		tok, ok := s.next()
		if !ok {
			return names
		}
		if tok.kind != tokParam {
			continue
		}
		text := s.text(tok)
		switch {
		case text == "?":
			names = append(names, "")
		case text[0] == '?':
			n, err := strconv.Atoi(text[1:])
			if err != nil || n <= 0 {
				continue
			}
			for len(names) < n {
				names = append(names, "")
			}
			names[n-1] = text
		case !seen[text]:
			seen[text] = true
			names = append(names, text)
		}
	}
}
