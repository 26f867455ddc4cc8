package extract

import (
	"regexp"
	"strings"
)

// mask returns a copy of s in which comments, string literals and quoted
// identifiers are blanked out with spaces. Newlines are kept so line and byte
// positions in the copy match the original.
//
// With lineBound set, a quote that is not closed on its own line is treated
// as an ordinary character. This keeps apostrophes in surrounding prose
// ("Here's the query:") from swallowing the statement that follows.
func mask(s string, lineBound bool) string {
	out := []byte(s)
	blank := func(from, to int) {
		for k := from; k < to && k < len(out); k++ {
			if out[k] != '\n' {
				out[k] = ' '
			}
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				end = len(s) - i
			}
			blank(i, i+end)
			i += end
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				blank(i, len(s))
				return string(out)
			}
			blank(i, i+2+end+2)
			i += 2 + end + 2
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			end, ok := closeQuote(s, i+1, closer, lineBound)
			if !ok {
				if lineBound {
					i++
					continue
				}
				blank(i, len(s))
				return string(out)
			}
			blank(i, end+1)
			i = end + 1
		default:
			i++
		}
	}
	return string(out)
}

// closeQuote finds the index of the quote closing a literal opened just before
// from. A doubled closer is an escaped character inside the literal.
func closeQuote(s string, from int, closer byte, lineBound bool) (int, bool) {
	for j := from; j < len(s); j++ {
		switch s[j] {
		case closer:
			if j+1 < len(s) && s[j+1] == closer {
				j++
				continue
			}
			return j, true
		case '\n':
			if lineBound {
				return 0, false
			}
		}
	}
	return 0, false
}

// splitTopLevel cuts s at semicolons that are not inside comments, literals or
// quoted identifiers.
func splitTopLevel(s string) []string {
	masked := mask(s, false)
	var pieces []string
	start := 0
	for i := 0; i < len(masked); i++ {
		if masked[i] == ';' {
			pieces = append(pieces, s[start:i])
			start = i + 1
		}
	}
	return append(pieces, s[start:])
}

var (
	wordPattern      = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	leadKeyword      = regexp.MustCompile(`(?i)\b(select|with)\b`)
	cteHead          = regexp.MustCompile("(?is)^with\\s+(recursive\\s+)?(\"[^\"]+\"|\\[[^\\]]+\\]|`[^`]+`|[\\w.]+)\\s*(\\([^()]*\\)\\s*)?as\\s*(not\\s+)?(materialized\\s+)?\\(")
	sqlLineKeywords  = wordSet("select", "from", "where", "join", "inner", "left", "right", "full", "cross", "outer", "on", "and", "or", "group", "order", "having", "union", "intersect", "except", "limit", "offset", "fetch", "top", "with", "as", "case", "when", "then", "else", "end", "not", "in", "exists", "between", "like", "is", "over", "partition", "by", "asc", "desc", "distinct", "window", "qualify", "pivot", "unpivot", "apply", "option")
	setOperators     = wordSet("union", "intersect", "except", "minus", "all", "distinct", "as", "exists", "in")
	plainWord        = regexp.MustCompile(`^[A-Za-z]+('[A-Za-z]+)?$`)
	proseWords       = wordSet("the", "this", "that", "these", "those", "a", "an", "it", "will", "which", "you", "your", "returns", "shows", "lists", "gives", "here", "query", "statement", "of", "to", "for", "we", "i")
	statementStarter = wordSet("select", "with", "insert", "update", "delete", "drop", "alter", "truncate", "exec", "execute", "merge", "create", "grant", "revoke", "deny", "declare", "set", "use", "begin", "commit", "rollback", "call", "replace", "values")
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// firstWord returns the lower-cased first identifier-like word of s.
func firstWord(s string) string {
	trimmed := strings.TrimLeft(s, " \t\r\n")
	loc := wordPattern.FindStringIndex(trimmed)
	if loc == nil || loc[0] != 0 {
		return ""
	}
	return strings.ToLower(trimmed[:loc[1]])
}

// locate returns the offset of the first SELECT or WITH in region that opens a
// statement. masked must be mask(region, true).
//
// Lower-case keywords only count at the start of a line (or after a colon)
// since both words also occur in English prose. An upper-case keyword in the
// middle of a line that ends like a sentence is prose too, and one that is
// merely mid-line gives way to a later keyword opening a line at the same
// nesting depth.
func locate(region, masked string) int {
	fallback := -1
	for _, loc := range leadKeyword.FindAllStringIndex(masked, -1) {
		pos := loc[0]
		word := region[loc[0]:loc[1]]
		atLineStart := opensLine(masked, pos)
		if word != strings.ToUpper(word) && !atLineStart {
			continue
		}
		if strings.EqualFold(word, "with") && !cteHead.MatchString(region[pos:]) {
			continue
		}
		if !atLineStart {
			if fallback < 0 && !endsSentence(lineOf(masked, pos)) {
				fallback = pos
			}
			continue
		}
		if fallback < 0 {
			return pos
		}
		if depth(masked[fallback:pos]) == 0 && !continuesStatement(masked[fallback:pos]) {
			return pos
		}
	}
	return fallback
}

// lineOf returns the trimmed line of s containing pos.
func lineOf(s string, pos int) string {
	start := strings.LastIndexByte(s[:pos], '\n') + 1
	end := strings.IndexByte(s[pos:], '\n')
	if end < 0 {
		return strings.TrimSpace(s[start:])
	}
	return strings.TrimSpace(s[start : pos+end])
}

func endsSentence(line string) bool {
	return strings.HasSuffix(line, ".") || strings.HasSuffix(line, ":") ||
		strings.HasSuffix(line, "!") || strings.HasSuffix(line, "?")
}

// depth returns the count of open minus close parentheses in s.
func depth(s string) int {
	return strings.Count(s, "(") - strings.Count(s, ")")
}

// continuesStatement reports whether s ends with a word that expects another
// query to follow, as in "UNION ALL" before the next SELECT.
func continuesStatement(s string) bool {
	words := wordPattern.FindAllString(s, -1)
	if len(words) == 0 {
		return false
	}
	return setOperators[strings.ToLower(words[len(words)-1])]
}

func opensLine(masked string, pos int) bool {
	lineStart := strings.LastIndexByte(masked[:pos], '\n') + 1
	before := strings.TrimSpace(masked[lineStart:pos])
	return before == "" || strings.HasSuffix(before, ":")
}

// cutProse drops trailing commentary from unfenced output. A line is prose when
// it ends like a sentence, or when it follows a blank line and does not read
// as a SQL clause.
func cutProse(s string) string {
	offset := 0
	blankFrom := -1
	for i, line := range strings.SplitAfter(s, "\n") {
		lineStart := offset
		offset += len(line)
		if i == 0 {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if blankFrom < 0 {
				blankFrom = lineStart
			}
			continue
		}
		if isProseLine(trimmed, blankFrom >= 0) {
			if blankFrom >= 0 {
				return s[:blankFrom]
			}
			return s[:lineStart]
		}
		blankFrom = -1
	}
	return s
}

// isProseLine reports whether a line of unfenced output is commentary rather
// than part of the statement. afterBlank is set when a blank line precedes it.
func isProseLine(line string, afterBlank bool) bool {
	if strings.HasPrefix(line, "--") || strings.HasPrefix(line, "/*") {
		return false
	}
	if endsSentence(line) {
		return true
	}
	switch line[0] {
	case '(', ')', ',', '*', ';':
		return false
	}
	if strings.HasSuffix(line, ",") || sqlLineKeywords[firstWord(line)] {
		return false
	}
	return afterBlank || readsAsSentence(line)
}

// readsAsSentence reports whether line is a run of plain words including at
// least one common English word, such as "This returns the top products".
func readsAsSentence(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return false
	}
	english := false
	for _, f := range fields {
		if !plainWord.MatchString(f) {
			return false
		}
		if proseWords[strings.ToLower(f)] {
			english = true
		}
	}
	return english
}

// statementVerb reports the first forbidden verb that opens a statement in
// region, looking at line starts, text after a semicolon and upper-case words.
// masked must be mask(region, true).
func statementVerb(region, masked string) (string, bool) {
	for _, loc := range wordPattern.FindAllStringIndex(masked, -1) {
		word := region[loc[0]:loc[1]]
		lower := strings.ToLower(word)
		if !forbiddenVerbs[lower] {
			continue
		}
		if word == strings.ToUpper(word) || opensLine(masked, loc[0]) || afterSemicolon(masked, loc[0]) {
			return lower, true
		}
	}
	return "", false
}

func afterSemicolon(masked string, pos int) bool {
	before := strings.TrimRight(masked[:pos], " \t\r\n")
	return strings.HasSuffix(before, ";")
}

// forbiddenToken reports the first forbidden keyword anywhere in stmt outside
// comments, literals and quoted identifiers.
func forbiddenToken(stmt string) (string, bool) {
	for _, w := range wordPattern.FindAllString(mask(stmt, false), -1) {
		lower := strings.ToLower(w)
		if forbiddenVerbs[lower] || lower == "into" {
			return lower, true
		}
	}
	return "", false
}

var forbiddenVerbs = wordSet("insert", "update", "delete", "drop", "alter", "truncate", "exec", "execute", "merge", "create", "grant", "revoke", "deny")
