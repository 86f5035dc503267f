// Package filter tags every node as knowledge or meta content. Meta
// subtrees stay in the tree for navigation but are excluded from
// atomization and summarization. The pass runs once, before the atomizer.
package filter

import (
	"context"
	"log/slog"
	"strings"

	"mathatom/internal/capability"
	"mathatom/internal/doctree"
)

// Titles that typically indicate meta/front-matter content.
var metaKeywords = []string{
	"preface", "foreword", "acknowledgement", "acknowledgment",
	"table of contents", "contents", "toc",
	"index", "glossary", "bibliography", "references",
	"copyright", "about the author", "dedication", "epigraph",
	"colophon", "endnotes", "footnotes",
	"list of figures", "list of tables", "list of illustrations",
	"permissions", "credits", "contributors",
}

// Titles that strongly indicate knowledge content.
var knowledgeKeywords = []string{
	"chapter", "part", "unit", "lesson",
	"introduction", "conclusion", "summary",
	"theorem", "definition", "lemma", "corollary", "proposition",
	"theory", "method", "analysis", "proof",
	"example", "exercise", "problem",
}

// ClassifyTitle does a keyword pass over a section title. certain is false
// when neither keyword table matched and the default was used.
func ClassifyTitle(title string) (cat doctree.Category, certain bool) {
	lower := strings.ToLower(title)
	for _, kw := range metaKeywords {
		if strings.Contains(lower, kw) {
			return doctree.CategoryMeta, true
		}
	}
	for _, kw := range knowledgeKeywords {
		if strings.Contains(lower, kw) {
			return doctree.CategoryKnowledge, true
		}
	}
	// Default to knowledge (conservative).
	return doctree.CategoryKnowledge, false
}

// Filter classifies nodes, consulting the external classifier only for
// titles the keyword tables cannot decide.
type Filter struct {
	classifier *capability.Classifier
	log        *slog.Logger
}

func New(classifier *capability.Classifier, log *slog.Logger) *Filter {
	return &Filter{classifier: classifier, log: log}
}

// Apply tags the whole tree. A meta classification applies transitively to
// the subtree. Classifier failures default to knowledge with a warning so
// content is never silently dropped.
func (f *Filter) Apply(ctx context.Context, tree *doctree.Tree) error {
	var apply func(n *doctree.Node, parentMeta bool) error
	apply = func(n *doctree.Node, parentMeta bool) error {
		if parentMeta {
			n.Category = doctree.CategoryMeta
		} else {
			cat, certain := ClassifyTitle(n.Title)
			if !certain && f.classifier != nil && n.Text() != "" {
				meta, err := f.classifier.Classify(ctx, n.Title, n.Text())
				switch {
				case err != nil && ctx.Err() != nil:
					return ctx.Err()
				case err != nil:
					f.log.Warn("content classification unavailable, keeping as knowledge",
						"node", n.ID, "error", err)
					n.Warn(doctree.WarnClassificationUnavailable, err.Error())
				case meta:
					cat = doctree.CategoryMeta
				}
			}
			n.Category = cat
		}
		for _, c := range n.Children {
			if err := apply(c, n.Category == doctree.CategoryMeta); err != nil {
				return err
			}
		}
		return nil
	}

	// The root itself is always knowledge; only its sections are filtered.
	tree.Root.Category = doctree.CategoryKnowledge
	for _, c := range tree.Root.Children {
		if err := apply(c, false); err != nil {
			return err
		}
	}
	return nil
}
