package split

import (
	"regexp"
	"strings"
)

var (
	inParamPattern  = regexp.MustCompile(`(?i)\bIN\s+\$\{[^}]*\}`)
	paramPattern    = regexp.MustCompile(`\$\{[^}]*\}`)
	storagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bSTORED\s+AS\s+\w+`),
		regexp.MustCompile(`(?i)\bLOCATION\s+['"][^'"]*['"]`),
		regexp.MustCompile(`(?i)\bPARTITIONED\s+BY\s*\([^)]*\)`),
		regexp.MustCompile(`(?i)\bTBLPROPERTIES\s*\([^)]*\)`),
		regexp.MustCompile(`(?i)\bROW\s+FORMAT\s+[^;]*`),
	}
	doubleComma = regexp.MustCompile(`,\s*,`)
	openComma   = regexp.MustCompile(`\(\s*,`)
	closeComma  = regexp.MustCompile(`,\s*\)`)
	multiSpace  = regexp.MustCompile(` +`)
)

// Clean removes comments, ${param} placeholders and Hive storage clauses so
// the parser only sees the data flow of a script. IN ${list} becomes IN ().
func Clean(script string) string {
	if strings.TrimSpace(script) == "" {
		return ""
	}

	sql := inParamPattern.ReplaceAllString(script, "IN ()")
	sql = paramPattern.ReplaceAllString(sql, "")
	sql = stripComments(sql)
	for _, re := range storagePatterns {
		sql = re.ReplaceAllString(sql, "")
	}

	sql = doubleComma.ReplaceAllString(sql, ",")
	sql = openComma.ReplaceAllString(sql, "(")
	sql = closeComma.ReplaceAllString(sql, ")")
	sql = multiSpace.ReplaceAllString(sql, " ")

	lines := strings.Split(sql, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if l := strings.TrimSpace(line); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

// stripComments drops --, # and /* */ comments outside of quoted text.
// Block comments are replaced by a space so adjacent tokens stay apart.
func stripComments(sql string) string {
	var out strings.Builder
	out.Grow(len(sql))
	var quote rune

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		if quote != 0 {
			out.WriteRune(ch)
			if ch == '\\' && quote != '`' && next != 0 {
				out.WriteRune(next)
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		}

		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			out.WriteRune(ch)
		case (ch == '-' && next == '-') || ch == '#':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			if i < len(runes) {
				out.WriteRune('\n')
			}
		case ch == '/' && next == '*':
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				if runes[i] == '\n' {
					out.WriteRune('\n')
				}
				i++
			}
			i++
			out.WriteRune(' ')
		default:
			out.WriteRune(ch)
		}
	}
	return out.String()
}
