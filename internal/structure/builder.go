// Package structure turns extracted pages plus an external hierarchy
// proposal into an invariant-sound document tree. The external capability
// owns correctness of the proposed nesting; this package only guarantees
// that whatever comes back becomes a valid tree.
package structure

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"mathatom/internal/capability"
	"mathatom/internal/doctree"
)

// Builder converts raw ordered pages into an initial document tree.
type Builder struct {
	oracle *capability.StructureOracle
	log    *slog.Logger
}

func NewBuilder(oracle *capability.StructureOracle, log *slog.Logger) *Builder {
	return &Builder{oracle: oracle, log: log}
}

// Build asks the structure capability for a hierarchy proposal and realizes
// it as a tree. If the capability fails after retries, it degrades to a
// flat one-section-per-page tree with a warning on the root.
func (b *Builder) Build(ctx context.Context, pages []doctree.Page, titleHint string) (*doctree.Tree, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to structure")
	}

	text, starts := ConcatPages(pages)

	proposal, err := b.oracle.Propose(ctx, text, titleHint)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.log.Warn("structure proposal unavailable, using flat fallback", "error", err)
		tree, ferr := FlatFallback(pages, titleHint)
		if ferr != nil {
			return nil, ferr
		}
		tree.Root.Warn(doctree.WarnClassificationUnavailable, fmt.Sprintf("structure proposal: %s", err))
		return tree, nil
	}

	tree, err := FromProposal(proposal, text, starts, titleHint)
	if err != nil {
		return nil, err
	}
	b.log.Info("structure built", "nodes", tree.Len(), "title", tree.Root.Title)
	return tree, nil
}

// pageMarker formats the boundary line inserted between pages in the
// concatenated oracle input.
func pageMarker(index int) string {
	return fmt.Sprintf("--- page %d ---", index)
}

// ConcatPages joins pages with boundary markers and returns the combined
// text plus the start offset of each page's content within it.
func ConcatPages(pages []doctree.Page) (string, []int) {
	var sb strings.Builder
	starts := make([]int, 0, len(pages))
	for i, page := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(pageMarker(page.Index))
		sb.WriteString("\n")
		starts = append(starts, sb.Len())
		sb.WriteString(page.Text)
	}
	return sb.String(), starts
}

// kindForLevel picks a default kind when the proposal's is missing or
// unknown.
func kindForLevel(level int) doctree.Kind {
	switch level {
	case 1:
		return doctree.KindChapter
	case 2:
		return doctree.KindSection
	case 3:
		return doctree.KindSubsection
	default:
		return doctree.KindContent
	}
}

func parseKind(s string) (doctree.Kind, bool) {
	switch doctree.Kind(s) {
	case doctree.KindBook, doctree.KindChapter, doctree.KindSection,
		doctree.KindSubsection, doctree.KindContent:
		return doctree.Kind(s), true
	}
	return "", false
}

// FromProposal realizes an oracle proposal as a document tree. Conflicting
// levels are coerced to parent+1, spans are clamped to the text, and
// duplicate titles at the same level get a positional id suffix (the title
// itself is unchanged).
func FromProposal(p *capability.StructureProposal, text string, starts []int, fallbackTitle string) (*doctree.Tree, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = fallbackTitle
	}
	if title == "" {
		title = "Untitled Document"
	}

	usedIDs := map[string]bool{}
	assignID := func(t string) string {
		base := doctree.Slugify(t)
		id := base
		for i := 2; usedIDs[id]; i++ {
			id = fmt.Sprintf("%s-%d", base, i)
		}
		usedIDs[id] = true
		return id
	}

	root := &doctree.Node{
		ID:       assignID(title),
		Title:    title,
		Kind:     doctree.KindBook,
		Level:    0,
		Category: doctree.CategoryKnowledge,
		Status:   doctree.StatusPending,
	}

	var realize func(pn *capability.ProposalNode, parent *doctree.Node)
	realize = func(pn *capability.ProposalNode, parent *doctree.Node) {
		nodeTitle := strings.TrimSpace(pn.Title)
		if nodeTitle == "" {
			nodeTitle = "Untitled Section"
		}
		level := parent.Level + 1 // coerce regardless of the proposed level

		kind, ok := parseKind(pn.Kind)
		if !ok || kind == doctree.KindBook {
			kind = kindForLevel(level)
		}

		start := max(0, min(pn.SpanStart, len(text)))
		end := max(start, min(pn.SpanEnd, len(text)))

		node := &doctree.Node{
			ID:       assignID(nodeTitle),
			Title:    nodeTitle,
			Kind:     kind,
			Level:    level,
			Category: doctree.CategoryKnowledge,
			Status:   doctree.StatusPending,
		}

		if len(pn.Children) == 0 {
			// Leaves own their span's raw text.
			node.SourceText = strings.TrimSpace(text[start:end])
		}
		if start < end {
			node.PageStart = pageAtOffsets(starts, start)
			node.PageEnd = pageAtOffsets(starts, end-1)
		}

		parent.Children = append(parent.Children, node)
		for _, child := range pn.Children {
			realize(child, node)
		}
	}

	for _, pn := range p.Outline {
		realize(pn, root)
	}

	if len(root.Children) == 0 {
		return nil, fmt.Errorf("structure proposal produced no sections")
	}
	return doctree.New(root)
}

// pageAtOffsets maps an offset to a 1-based page ordinal from the start
// offsets alone (page indexes are sequential in ConcatPages output).
func pageAtOffsets(starts []int, offset int) int {
	if len(starts) == 0 {
		return 0
	}
	i := sort.SearchInts(starts, offset+1) - 1
	if i < 0 {
		i = 0
	}
	return i + 1
}

// FlatFallback builds a one-section-per-page tree used when the structure
// capability is unavailable.
func FlatFallback(pages []doctree.Page, title string) (*doctree.Tree, error) {
	if title == "" {
		title = "Untitled Document"
	}
	root := &doctree.Node{
		ID:       doctree.Slugify(title),
		Title:    title,
		Kind:     doctree.KindBook,
		Level:    0,
		Category: doctree.CategoryKnowledge,
		Status:   doctree.StatusPending,
	}
	for _, page := range pages {
		root.Children = append(root.Children, &doctree.Node{
			ID:         fmt.Sprintf("page-%d", page.Index),
			Title:      fmt.Sprintf("Page %d", page.Index),
			Kind:       doctree.KindSection,
			Level:      1,
			Category:   doctree.CategoryKnowledge,
			Status:     doctree.StatusPending,
			SourceText: page.Text,
			PageStart:  page.Index,
			PageEnd:    page.Index,
		})
	}
	return doctree.New(root)
}
