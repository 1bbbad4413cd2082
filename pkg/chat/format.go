package chat

import (
	"regexp"
	"strings"
)

var (
	bulletRe       = regexp.MustCompile(`(?m)^\s*[\*\-]\s`)
	boldRe         = regexp.MustCompile(`\*\*(.*?)\*\*`)
	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\s?\((https?://[^\s\)]+)\)`)
	trailingURLRe  = regexp.MustCompile(`(?m)([^\n]+?)[\s　]+(https?://[^\s<>]+)$`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s<>|]+`)
)

// FormatMrkdwn rewrites model output (markdown-ish) into Slack mrkdwn:
// bullets become "・", **bold** becomes *bold*, links become <url|label> and
// remaining bare URLs are wrapped in angle brackets.
func FormatMrkdwn(text string) string {
	out := bulletRe.ReplaceAllString(text, "・")
	out = boldRe.ReplaceAllString(out, "*$1*")
	out = markdownLinkRe.ReplaceAllString(out, "<$2|$1>")
	out = trailingURLRe.ReplaceAllString(out, "<$2|$1>")
	return wrapBareURLs(out)
}

// wrapBareURLs wraps URLs that are not already inside <...>. A URL counts as
// enclosed when it is directly preceded by '<' or when a '>' follows it
// before the next '<'.
func wrapBareURLs(s string) string {
	var b strings.Builder
	pos := 0
	copied := 0
	for pos < len(s) {
		loc := bareURLRe.FindStringIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if enclosed(s, start, end) {
			pos = start + 1
			continue
		}
		b.WriteString(s[copied:start])
		b.WriteByte('<')
		b.WriteString(s[start:end])
		b.WriteByte('>')
		copied = end
		pos = end
	}
	if copied == 0 {
		return s
	}
	b.WriteString(s[copied:])
	return b.String()
}

func enclosed(s string, start, end int) bool {
	if start > 0 && s[start-1] == '<' {
		return true
	}
	rest := s[end:]
	if i := strings.IndexAny(rest, "<>"); i >= 0 && rest[i] == '>' {
		return true
	}
	return false
}
