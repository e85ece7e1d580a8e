package notify

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var (
	mdRenderer      goldmark.Markdown
	telegramPolicy  *bluemonday.Policy
	plainTextPolicy *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
	)

	// Telegram's HTML parse mode accepts only a handful of inline tags.
	telegramPolicy = bluemonday.NewPolicy()
	telegramPolicy.AllowElements("b", "strong", "i", "em", "u", "s", "del", "code", "pre")
	telegramPolicy.AllowAttrs("href").OnElements("a")
	telegramPolicy.AllowURLSchemes("http", "https")
	telegramPolicy.RequireParseableURLs(true)

	plainTextPolicy = bluemonday.StrictPolicy()
}

// RenderTelegramHTML converts a Markdown message to the HTML subset the
// Telegram Bot API accepts. Block elements are dropped and their text kept.
// Returns empty string for empty input.
func RenderTelegramHTML(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return telegramPolicy.Sanitize(src)
	}

	return collapseBlankLines(telegramPolicy.Sanitize(buf.String()))
}

// RenderPlainText converts a Markdown message to plain text for SMS. Link
// targets are appended after their label so they survive the conversion.
func RenderPlainText(src string) string {
	if src == "" {
		return ""
	}

	source := []byte(src)
	doc := mdRenderer.Parser().Parse(text.NewReader(source))

	var buf strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				buf.Write(node.Label(source))
			}
		case *ast.Link:
			if !entering {
				buf.WriteString(": ")
				buf.Write(node.Destination)
			}
		case *ast.ListItem:
			if entering {
				buf.WriteString("- ")
			}
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering {
				buf.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return plainTextPolicy.Sanitize(src)
	}

	return collapseBlankLines(buf.String())
}

func collapseBlankLines(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" && len(out) > 0 && out[len(out)-1] == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
