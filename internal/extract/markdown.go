package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"

	"docqa/internal/models"
)

func parseMarkdown(path string) ([]models.Page, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, err := markdownToPlainText(src)
	if err != nil {
		return nil, fmt.Errorf("parse markdown: %w", err)
	}
	return []models.Page{{Number: 1, Text: text}}, nil
}

// markdownToPlainText walks the goldmark AST and keeps only the text
// content, so markup never leaks into chunks or embeddings.
func markdownToPlainText(src []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(gmtext.NewReader(src))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := n.(*ast.Text); ok {
				b.Write(t.Segment.Value(src))
				if t.SoftLineBreak() || t.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.Paragraph, *ast.Heading:
			b.WriteString("\n\n")
		case *ast.ListItem, *ast.Blockquote:
			b.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()) + "\n", nil
}
