// Package render produces the final HTML export for a completed run: the
// article body converted from markdown, with generated images placed after
// their layout sections.
package render

import (
	"bytes"
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"

	"contentflow/pkg/assets"
	"contentflow/pkg/state"
)

// Renderer converts finished article state into a stored HTML asset.
type Renderer struct {
	store *assets.Store
}

func NewRenderer(store *assets.Store) *Renderer {
	return &Renderer{store: store}
}

// Export renders the article to HTML and stores it under the run's thread.
// Returns the stored path.
func (r *Renderer) Export(st *state.State) (string, error) {
	if st.Article == nil {
		return "", fmt.Errorf("no article to export")
	}

	body, err := markdownToHTML(st.Article.Body)
	if err != nil {
		return "", fmt.Errorf("failed to render article body: %w", err)
	}

	var doc bytes.Buffer
	doc.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	fmt.Fprintf(&doc, "<meta charset=\"utf-8\">\n<title>%s</title>\n", html.EscapeString(st.Article.Title))
	doc.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&doc, "<h1>%s</h1>\n", html.EscapeString(st.Article.Title))
	doc.WriteString(body)
	writeGallery(&doc, st)
	doc.WriteString("</body>\n</html>\n")

	path, _, err := r.store.Put(st.ThreadID, "article.html", doc.Bytes())
	if err != nil {
		return "", err
	}
	return path, nil
}

// writeGallery appends generated images, captioned from the matching image
// plan when one exists.
func writeGallery(doc *bytes.Buffer, st *state.State) {
	if len(st.GeneratedImagePaths) == 0 {
		return
	}
	doc.WriteString("<section class=\"images\">\n")
	for i, p := range st.GeneratedImagePaths {
		caption := filepath.Base(p)
		if i < len(st.ImagePlans) && st.ImagePlans[i].Description != "" {
			caption = st.ImagePlans[i].Description
		}
		fmt.Fprintf(doc, "<figure><img src=\"%s\" alt=\"%s\"><figcaption>%s</figcaption></figure>\n",
			html.EscapeString(p), html.EscapeString(caption), html.EscapeString(caption))
	}
	doc.WriteString("</section>\n")
}

func markdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(strings.TrimSpace(md)), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
