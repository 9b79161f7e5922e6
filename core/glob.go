package core

import (
	"regexp"
	"strings"
	"sync"
)

var globCache sync.Map

// MatchGlob reports whether name matches the shell-style pattern. Unlike
// path.Match, '*' also crosses '/' so "refs/heads/*" matches nested refs.
// Supported syntax: '*', '?', '[seq]' and '[!seq]'.
func MatchGlob(pattern string, name string) bool {
	re, err := compileGlob(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(name)
}

// ValidGlob reports whether pattern compiles.
func ValidGlob(pattern string) bool {
	_, err := compileGlob(pattern)
	return err == nil
}

func compileGlob(pattern string) (*regexp.Regexp, error) {
	if cached, ok := globCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(globToRegexp(pattern))
	if err != nil {
		return nil, err
	}
	globCache.Store(pattern, re)
	return re, nil
}

func globToRegexp(pattern string) string {
	var out strings.Builder
	out.WriteString(`(?s)\A`)
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch ch {
		case '*':
			out.WriteString(`.*`)
		case '?':
			out.WriteString(`.`)
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				out.WriteString(`\[`)
				continue
			}
			// ']' directly after '[' or '[!' is a literal member.
			body := pattern[i+1 : i+1+end]
			if body == "" || body == "!" {
				next := strings.IndexByte(pattern[i+2+end:], ']')
				if next < 0 {
					out.WriteString(`\[`)
					continue
				}
				body = pattern[i+1 : i+2+end+next]
				end += next + 1
			}
			out.WriteString(bracketClass(body))
			i += end + 1
		default:
			out.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	out.WriteString(`\z`)
	return out.String()
}

func bracketClass(body string) string {
	negate := strings.HasPrefix(body, "!")
	if negate {
		body = body[1:]
	}
	body = strings.ReplaceAll(body, `\`, `\\`)
	body = strings.ReplaceAll(body, `[`, `\[`)
	body = strings.ReplaceAll(body, `]`, `\]`)
	body = strings.ReplaceAll(body, `^`, `\^`)
	if negate {
		return "[^" + body + "]"
	}
	return "[" + body + "]"
}
