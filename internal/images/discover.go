package images

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	translator "notion2hexo/pkg"
)

// Discover lists the images of a Markdown document in document order. It is
// used for posts written earlier, where converter output is not available.
func Discover(source []byte) []translator.ImageReference {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var refs []translator.ImageReference
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}
		refs = append(refs, translator.ImageReference{
			URL: string(img.Destination),
			Alt: altText(img, source),
		})
		return ast.WalkSkipChildren, nil
	})
	return refs
}

func altText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			continue
		}
		buf.WriteString(altText(c, source))
	}
	return buf.String()
}
