package core

import (
	"strings"
	"unicode"
)

// StripLeadingComments removes whitespace, line comments and block comments
// from the start of a SQL text.
func StripLeadingComments(sql string) string {
	s := sql
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"):
			idx := strings.IndexByte(s, '\n')
			if idx < 0 {
				return ""
			}
			s = s[idx+1:]
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return ""
			}
			s = s[idx+2:]
		default:
			return s
		}
	}
}

// LeadingKeyword returns the first keyword of sql, upper-cased.
func LeadingKeyword(sql string) string {
	s := StripLeadingComments(sql)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	})
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}

// SplitStatements splits sql on semicolons outside quotes and comments.
// Empty statements are dropped.
func SplitStatements(sql string) []string {
	var (
		out   []string
		start int
		quote rune
	)
	runes := []rune(sql)
	flush := func(end int) {
		if stmt := strings.TrimSpace(string(runes[start:end])); stmt != "" {
			out = append(out, stmt)
		}
		start = end + 1
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && (runes[i] != '*' || runes[i+1] != '/') {
				i++
			}
			i++
		case r == ';':
			flush(i)
		}
	}
	if start < len(runes) {
		flush(len(runes))
	}
	return out
}

var ddlKeywords = map[string]struct{}{
	"CREATE": {}, "ALTER": {}, "DROP": {}, "TRUNCATE": {}, "RENAME": {}, "COMMENT": {},
}

// IsSchemaMutating reports whether any statement in sql starts with a DDL keyword.
func IsSchemaMutating(sql string) bool {
	for _, stmt := range SplitStatements(sql) {
		if _, ok := ddlKeywords[LeadingKeyword(stmt)]; ok {
			return true
		}
	}
	return false
}

var rowKeywords = map[string]struct{}{
	"SELECT": {}, "WITH": {}, "SHOW": {}, "EXPLAIN": {}, "VALUES": {},
	"PRAGMA": {}, "DESCRIBE": {}, "DESC": {}, "TABLE": {}, "FROM": {}, "SUMMARIZE": {},
}

// ReturnsRows reports whether sql is expected to produce a result set.
func ReturnsRows(sql string) bool {
	_, ok := rowKeywords[LeadingKeyword(sql)]
	return ok
}
