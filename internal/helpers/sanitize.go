package helpers

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy

	reportPolicyOnce sync.Once
	reportPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy returns a singleton policy that strips every element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// ReportHTMLPolicy allows the small set of formatting tags report prose is rendered with.
func ReportHTMLPolicy() *bluemonday.Policy {
	reportPolicyOnce.Do(func() {
		policy := bluemonday.NewPolicy()
		policy.AllowElements("p", "br", "ul", "ol", "li", "strong", "em", "b", "i", "code")
		policy.AllowURLSchemes("http", "https")
		policy.AllowAttrs("href").OnElements("a")
		policy.RequireParseableURLs(true)
		policy.AddTargetBlankToFullyQualifiedLinks(true)
		reportPolicy = policy
	})
	return reportPolicy
}

// SanitizeHTMLStrict removes every HTML tag from s and trims surrounding whitespace.
// Completion output is treated as untrusted text.
func SanitizeHTMLStrict(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(StrictHTMLPolicy().Sanitize(s)))
}

// ProseToHTML turns plain completion prose into report markup: blank lines split
// paragraphs, lines starting with "-", "*" or "•" become list items, and **bold**
// spans become <strong>. The result is sanitized with ReportHTMLPolicy.
func ProseToHTML(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if s == "" {
		return ""
	}
	var b strings.Builder
	inList := false
	para := make([]string, 0, 4)
	flushPara := func() {
		if len(para) == 0 {
			return
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(para, "<br>"))
		b.WriteString("</p>")
		para = para[:0]
	}
	closeList := func() {
		if inList {
			b.WriteString("</ul>")
			inList = false
		}
	}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flushPara()
			closeList()
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "• "):
			flushPara()
			if !inList {
				b.WriteString("<ul>")
				inList = true
			}
			item := strings.TrimSpace(strings.TrimLeft(line, "-*• "))
			b.WriteString("<li>" + emphasize(html.EscapeString(item)) + "</li>")
		default:
			closeList()
			para = append(para, emphasize(html.EscapeString(strings.TrimLeft(line, "# "))))
		}
	}
	flushPara()
	closeList()
	return strings.TrimSpace(ReportHTMLPolicy().Sanitize(b.String()))
}

func emphasize(s string) string {
	for {
		start := strings.Index(s, "**")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start+2:], "**")
		if end < 0 {
			return s
		}
		end += start + 2
		s = s[:start] + "<strong>" + s[start+2:end] + "</strong>" + s[end+2:]
	}
}
