// Package wikitext converts wiki markup into plain text. It is the default
// normalizer injected into the pipeline; any func(string) string with the
// same contract can replace it.
package wikitext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	commentRe  = regexp.MustCompile(`(?s)<!--.*?-->`)
	extLinkRe  = regexp.MustCompile(`\[(?:https?|ftp)://\S+(?:\s+([^\]]+))?\]`)
	headingRe  = regexp.MustCompile(`(?m)^=+\s*(.*?)\s*=+\s*$`)
	quotesRe   = regexp.MustCompile(`'{2,}`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// Normalize strips wiki markup and embedded HTML from text, returning plain
// paragraphs separated by blank lines. Pure function, no I/O.
func Normalize(markup string) string {
	text := commentRe.ReplaceAllString(markup, "")
	text = stripTemplates(text)
	text = stripTables(text)
	text = stripLinks(text)
	text = extLinkRe.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "$1")
	text = quotesRe.ReplaceAllString(text, "")
	text = stripHTML(text)
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// stripTemplates removes {{...}} blocks, tracking nesting depth.
func stripTemplates(s string) string {
	var out strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		if strings.HasPrefix(s[i:], "{{") {
			depth++
			i++
			continue
		}
		if depth > 0 && strings.HasPrefix(s[i:], "}}") {
			depth--
			i++
			continue
		}
		if depth == 0 {
			out.WriteByte(s[i])
		}
	}
	return out.String()
}

// stripTables removes {| ... |} wiki tables, tracking nesting depth.
func stripTables(s string) string {
	var out strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		if strings.HasPrefix(s[i:], "{|") {
			depth++
			i++
			continue
		}
		if depth > 0 && strings.HasPrefix(s[i:], "|}") {
			depth--
			i++
			continue
		}
		if depth == 0 {
			out.WriteByte(s[i])
		}
	}
	return out.String()
}

// stripLinks rewrites [[target|label]] to label and [[target]] to target.
// File, image and category links are dropped entirely, including any
// nested caption links.
func stripLinks(s string) string {
	var out strings.Builder
	for {
		start := strings.Index(s, "[[")
		if start < 0 {
			out.WriteString(s)
			break
		}
		out.WriteString(s[:start])

		depth := 1
		i := start + 2
		for i < len(s) && depth > 0 {
			switch {
			case strings.HasPrefix(s[i:], "[["):
				depth++
				i += 2
			case strings.HasPrefix(s[i:], "]]"):
				depth--
				i += 2
			default:
				i++
			}
		}

		inner := s[start+2 : max(start+2, i-2)]
		if !droppedLink(inner) {
			if pipe := strings.LastIndex(inner, "|"); pipe >= 0 {
				out.WriteString(inner[pipe+1:])
			} else {
				out.WriteString(inner)
			}
		}
		s = s[i:]
	}
	return out.String()
}

var droppedPrefixes = []string{
	"file:", "image:", "category:", "datei:", "bild:", "kategorie:",
}

func droppedLink(inner string) bool {
	lower := strings.ToLower(inner)
	for _, p := range droppedPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// stripHTML removes tags (ref, br, nowiki, ...) keeping their text content.
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}

	var out strings.Builder
	tz := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			out.Write(tz.Text())
		}
	}
	return out.String()
}
