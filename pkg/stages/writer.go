package stages

import (
	"context"
	"strings"

	"contentflow/pkg/graph"
	"contentflow/pkg/state"
	"contentflow/pkg/templates"
	"contentflow/pkg/utils"
)

// Writer produces the article from brief, evidence and layout.
type Writer struct {
	base
}

// NewWriter creates the writer node.
func NewWriter(deps Deps) *Writer {
	return &Writer{base: newBase(deps, state.StageWriter)}
}

// Run implements graph.Node.
func (n *Writer) Run(ctx context.Context, st *state.State) (graph.Result, error) {
	u, err := n.compress(ctx, st)
	if err != nil {
		return graph.Result{}, err
	}

	prompt, err := n.deps.Renderer.Render(templates.WriterTemplate, n.promptData(st))
	if err != nil {
		return graph.Result{}, err
	}

	conv, err := n.converse(ctx, st, prompt, nil)
	if err != nil {
		return graph.Result{}, err
	}

	var article state.Article
	if !utils.DecodeJSONObject(conv.content, &article) ||
		strings.TrimSpace(article.Title) == "" ||
		strings.TrimSpace(article.Body) == "" {
		u.Messages = conv.messages
		return graph.Fail("article_parse_failed", u), nil
	}

	u.Article = &article
	u.ContentComplete = state.BoolPtr(true)
	// A rewritten article invalidates any previous review verdict.
	u.ReviewComplete = state.BoolPtr(false)
	n.logger.Info("article written: %q (%d chars)", article.Title, len(article.Body))
	return suspendOrContinue(conv, u), nil
}
