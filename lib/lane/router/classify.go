package router

import (
	"strings"
)

type Classification int

const (
	// ClassWrite is the default: anything not known to be read only goes to
	// the primary.
	ClassWrite Classification = iota
	ClassRead
)

func (T Classification) String() string {
	if T == ClassRead {
		return "read"
	}
	return "write"
}

// lockingClauses force an otherwise read only statement to the primary.
var lockingClauses = []string{
	"FOR UPDATE",
	"FOR NO KEY UPDATE",
	"FOR SHARE",
	"FOR KEY SHARE",
}

var writeKeywords = []string{
	"INSERT",
	"UPDATE",
	"DELETE",
	"MERGE",
}

// Classify decides whether a statement may be served by a replica. Only
// statements that are provably read only are classified as reads; anything
// ambiguous is a write.
func Classify(query string) Classification {
	keyword, rest := FirstKeyword(query)

	switch keyword {
	case "SELECT", "VALUES", "TABLE", "SHOW":
	case "WITH":
		// a CTE may wrap a data-modifying statement
		upper := strings.ToUpper(rest)
		for _, kw := range writeKeywords {
			if containsWord(upper, kw) {
				return ClassWrite
			}
		}
	default:
		return ClassWrite
	}

	upper := strings.ToUpper(rest)
	for _, clause := range lockingClauses {
		if containsClause(upper, clause) {
			return ClassWrite
		}
	}

	// more than one statement, play it safe
	if i := strings.IndexByte(upper, ';'); i >= 0 {
		if strings.TrimSpace(upper[i+1:]) != "" {
			return ClassWrite
		}
	}

	return ClassRead
}

// FirstKeyword returns the first SQL keyword, uppercased, skipping leading
// whitespace and comments, along with everything after it.
func FirstKeyword(query string) (string, string) {
	i := 0
	for i < len(query) {
		switch {
		case query[i] == ' ' || query[i] == '\t' || query[i] == '\n' || query[i] == '\r':
			i++
		case strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				return "", ""
			}
			i += end + 1
		case strings.HasPrefix(query[i:], "/*"):
			depth := 1
			j := i + 2
			for j < len(query) && depth > 0 {
				switch {
				case strings.HasPrefix(query[j:], "/*"):
					depth++
					j += 2
				case strings.HasPrefix(query[j:], "*/"):
					depth--
					j += 2
				default:
					j++
				}
			}
			if depth > 0 {
				return "", ""
			}
			i = j
		default:
			start := i
			for i < len(query) && isWordByte(query[i]) {
				i++
			}
			if i == start {
				return "", ""
			}
			return strings.ToUpper(query[start:i]), query[i:]
		}
	}
	return "", ""
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}

// containsWord reports whether upper contains kw as a whole word.
func containsWord(upper, kw string) bool {
	for from := 0; ; {
		i := strings.Index(upper[from:], kw)
		if i < 0 {
			return false
		}
		i += from
		before := i == 0 || !isWordByte(upper[i-1])
		after := i+len(kw) == len(upper) || !isWordByte(upper[i+len(kw)])
		if before && after {
			return true
		}
		from = i + len(kw)
	}
}

// containsClause matches a multi-word clause regardless of the whitespace
// and punctuation around the words.
func containsClause(upper, clause string) bool {
	words := strings.Fields(clause)
	fields := strings.FieldsFunc(upper, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_')
	})
	for i := 0; i+len(words) <= len(fields); i++ {
		match := true
		for j, word := range words {
			if fields[i+j] != word {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
