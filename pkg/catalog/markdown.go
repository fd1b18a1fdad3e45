package catalog

import (
	"regexp"
	"strings"
)

// DefaultSummaryLimit bounds package descriptions embedded in prompts.
const DefaultSummaryLimit = 300

// transform is one pure text rewrite. The summarization pipeline is an
// ordered list of transforms, each independently testable.
type transform func(string) string

var (
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	imageRe      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	headerRe     = regexp.MustCompile(`(?m)^#{1,6}[ \t]*`)
	emphasisRe   = regexp.MustCompile(`[*_]{1,3}([^*_]+)[*_]{1,3}`)
	listMarkerRe = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+\.)[ \t]+`)
	blockquoteRe = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

func stripCodeBlocks(s string) string { return codeBlockRe.ReplaceAllString(s, " ") }

func stripInlineCode(s string) string { return inlineCodeRe.ReplaceAllString(s, "$1") }

func stripImages(s string) string { return imageRe.ReplaceAllString(s, "") }

func stripLinks(s string) string { return linkRe.ReplaceAllString(s, "$1") }

func stripHeaders(s string) string { return headerRe.ReplaceAllString(s, "") }

func stripEmphasis(s string) string { return emphasisRe.ReplaceAllString(s, "$1") }

func stripListMarkers(s string) string { return listMarkerRe.ReplaceAllString(s, "") }

func stripBlockquotes(s string) string { return blockquoteRe.ReplaceAllString(s, "") }

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Order matters: code blocks go before inline code so a fenced block is
// not half-eaten as inline spans, and images go before links because an
// image is a link with a prefix.
var pipeline = []transform{
	stripCodeBlocks,
	stripInlineCode,
	stripImages,
	stripLinks,
	stripHeaders,
	stripEmphasis,
	stripListMarkers,
	stripBlockquotes,
	collapseWhitespace,
}

// Plaintext strips markdown syntax from text, leaving readable prose.
func Plaintext(text string) string {
	for _, t := range pipeline {
		text = t(text)
	}

	return text
}

// Summarize strips markdown and bounds the result to limit runes.
func Summarize(text string, limit int) string {
	plain := Plaintext(text)
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}

	runes := []rune(plain)
	if len(runes) <= limit {
		return plain
	}

	return strings.TrimSpace(string(runes[:limit]))
}
