package skills

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Outline returns the heading texts of a skill body in document order. The
// catalog endpoint uses it so the model can see what a skill covers before
// loading the whole body.
func Outline(body string) []string {
	source := []byte(body)
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var headings []string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			var sb strings.Builder
			for c := h.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					sb.Write(t.Segment.Value(source))
				}
			}
			if title := strings.TrimSpace(sb.String()); title != "" {
				headings = append(headings, title)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return headings
}
