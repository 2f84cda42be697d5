package world

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
)

// HTMLExtensions are the extensions HTMLViewer is registered for.
var HTMLExtensions = []string{".html", ".htm"}

// HTMLViewer returns a Viewer that presents HTML files as simplified
// markdown. At most maxBytes of the source are read; maxBytes <= 0 reads
// the whole file.
func HTMLViewer(maxBytes int) Viewer {
	return func(ctx context.Context, path string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()

		var r io.Reader = f
		if maxBytes > 0 {
			r = io.LimitReader(f, int64(maxBytes))
		}
		doc, err := html.Parse(r)
		if err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}

		var sb strings.Builder
		writeMarkdown(doc, &sb, 0)
		return cleanMarkdown(sb.String()), nil
	}
}

func writeMarkdown(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 64 {
		return
	}

	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "svg", "iframe":
			return
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n" + strings.Repeat("#", int(n.Data[1]-'0')) + " ")
		case "p", "div", "section", "article":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		case "pre":
			sb.WriteString("\n\n```\n")
		case "code":
			if !insidePre(n) {
				sb.WriteString("`")
			}
		case "img":
			if alt := attr(n, "alt"); alt != "" {
				sb.WriteString("[Image: " + alt + "]")
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeMarkdown(c, sb, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n")
		case "pre":
			sb.WriteString("\n```\n\n")
		case "code":
			if !insidePre(n) {
				sb.WriteString("`")
			}
		}
	}
}

func insidePre(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "pre" {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func cleanMarkdown(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = multiNewline.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(s)
}
