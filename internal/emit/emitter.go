// Package emit serializes a finished tree into markdown artifacts plus a
// machine-readable link graph. Output is a pure function of the tree:
// pre-order traversal, no timestamps, byte-identical across runs.
package emit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mathatom/internal/doctree"
	"mathatom/internal/linker"
)

// Artifact is one emitted output file.
type Artifact struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Emitter renders the tree. Link resolution must already have run so that
// every node carries its ResolvedPath.
type Emitter struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Emitter {
	return &Emitter{log: log}
}

// Emit produces one markdown artifact per node, in pre-order, plus a
// links.json graph artifact as the final entry.
func (e *Emitter) Emit(tree *doctree.Tree) ([]Artifact, error) {
	var arts []Artifact
	var walk func(n, parent *doctree.Node)
	walk = func(n, parent *doctree.Node) {
		arts = append(arts, Artifact{
			Path:    linker.FilePath(n),
			Content: e.render(n, parent),
		})
		for _, c := range n.Children {
			walk(c, n)
		}
	}
	walk(tree.Root, nil)

	graph, err := e.linkGraph(tree)
	if err != nil {
		return nil, fmt.Errorf("link graph: %w", err)
	}
	arts = append(arts, Artifact{Path: "links.json", Content: graph})
	return arts, nil
}

func (e *Emitter) render(n, parent *doctree.Node) string {
	if n.Status == doctree.StatusFilled && n.Atom != nil {
		return e.renderAtom(n, parent)
	}
	return e.renderIndex(n, parent)
}

// renderAtom lays out one filled atom: navigation, description, the typed
// statement, proof, supporting lemmas, related content, then any warnings.
func (e *Emitter) renderAtom(n, parent *doctree.Node) string {
	var b strings.Builder
	self := linker.FilePath(n)

	fmt.Fprintf(&b, "# %s\n\n", n.Title)
	writeNav(&b, self, parent, n.Children)

	fmt.Fprintf(&b, "## Description\n\n%s\n\n", n.Atom.Description)
	fmt.Fprintf(&b, "## %s\n\n%s\n", statementHeading(n.AtomType), n.Atom.Statement)

	if n.Atom.Proof != "" {
		fmt.Fprintf(&b, "\n## Proof\n\n%s\n", n.Atom.Proof)
	}
	if len(n.Atom.Lemmas) > 0 {
		b.WriteString("\n## Supporting Lemmas\n\n")
		for _, lemma := range n.Atom.Lemmas {
			fmt.Fprintf(&b, "- %s\n", lemma)
		}
	}
	if n.Atom.RelatedContent != "" {
		fmt.Fprintf(&b, "\n## Related Content\n\n%s\n", n.Atom.RelatedContent)
	}
	writeWarnings(&b, n)
	return b.String()
}

// renderIndex lays out a structural node, a meta node, or a leaf that never
// reached FILLED: navigation, then either the child listing or the raw text.
func (e *Emitter) renderIndex(n, parent *doctree.Node) string {
	var b strings.Builder
	self := linker.FilePath(n)

	fmt.Fprintf(&b, "# %s\n\n", n.Title)
	writeNav(&b, self, parent, n.Children)

	if len(n.Children) > 0 {
		b.WriteString("## Contents\n\n")
		for _, c := range n.Children {
			fmt.Fprintf(&b, "- [%s](%s)\n", c.Title, linker.RelativePath(self, linker.FilePath(c)))
		}
	} else if text := n.Text(); text != "" {
		b.WriteString(text)
		b.WriteString("\n")
	}

	if n.Status == doctree.StatusFailed {
		b.WriteString("\n*Summary unavailable for this unit.*\n")
	}
	writeWarnings(&b, n)
	return b.String()
}

func writeNav(b *strings.Builder, self string, parent *doctree.Node, children []*doctree.Node) {
	if parent == nil && len(children) == 0 {
		return
	}
	if parent != nil {
		fmt.Fprintf(b, "> Parent: [%s](%s)\n", parent.Title, linker.RelativePath(self, linker.FilePath(parent)))
	}
	if len(children) > 0 {
		fmt.Fprintf(b, "> Children: %d\n", len(children))
	}
	b.WriteString("\n")
}

func writeWarnings(b *strings.Builder, n *doctree.Node) {
	if len(n.Warnings) == 0 {
		return
	}
	b.WriteString("\n---\n\n")
	for _, w := range n.Warnings {
		fmt.Fprintf(b, "> Warning (%s): %s\n", w.Kind, w.Detail)
	}
}

func statementHeading(t doctree.AtomType) string {
	if t == "" {
		return "Statement"
	}
	s := string(t)
	return strings.ToUpper(s[:1]) + s[1:]
}

// graphNode is one entry of the links.json artifact.
type graphNode struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Path     string   `json:"path"`
	Kind     string   `json:"kind"`
	Status   string   `json:"status"`
	AtomType string   `json:"atom_type,omitempty"`
	Links    []string `json:"links,omitempty"`
}

var linkTargetRe = regexp.MustCompile(`\[[^\]]+\]\(([^)#][^)]*)\)`)

// linkGraph serializes every node with its outgoing resolved links, in
// pre-order so the artifact is deterministic.
func (e *Emitter) linkGraph(tree *doctree.Tree) (string, error) {
	var nodes []graphNode
	tree.Walk(func(n *doctree.Node) bool {
		gn := graphNode{
			ID:       n.ID,
			Title:    n.Title,
			Path:     linker.FilePath(n),
			Kind:     string(n.Kind),
			Status:   string(n.Status),
			AtomType: string(n.AtomType),
		}
		if n.Atom != nil {
			for _, lemma := range n.Atom.Lemmas {
				gn.Links = append(gn.Links, extractTargets(lemma)...)
			}
			gn.Links = append(gn.Links, extractTargets(n.Atom.RelatedContent)...)
		}
		nodes = append(nodes, gn)
		return true
	})

	out, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}

// extractTargets pulls resolved link targets out of markdown text.
// Unresolved "#" placeholders are not graph edges.
func extractTargets(s string) []string {
	var targets []string
	for _, m := range linkTargetRe.FindAllStringSubmatch(s, -1) {
		targets = append(targets, m[1])
	}
	return targets
}
