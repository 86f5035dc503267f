// Package linker resolves cross-references over a finished tree in two
// strictly sequential passes: registration assigns every node a canonical
// path and builds the title indexes; rewrite turns title references inside
// atom content into links. Both passes are pure tree walks with no external
// calls, so resolution is deterministic and replayable.
package linker

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mathatom/internal/doctree"
)

// Index maps titles to emitted file paths. Built by Register, consumed by
// Rewrite.
type Index struct {
	byTitle map[string]string // normalized title -> file path
	byType  map[string]string // atom type + normalized title -> file path
	byRef   map[string]string // "lemma 2.3" designator -> file path
}

// Resolve looks a reference title up: exact title match first, then a
// type-qualified match when the referencing atom's type is known, then a
// designator match for bare references like "Lemma 2.3" against nodes
// titled "Lemma 2.3: Compactness".
func (idx *Index) Resolve(title string, atomType doctree.AtomType) (string, bool) {
	norm := normalizeTitle(title)
	if path, ok := idx.byTitle[norm]; ok {
		return path, true
	}
	if atomType != "" {
		if path, ok := idx.byType[typeKey(atomType, norm)]; ok {
			return path, true
		}
	}
	if path, ok := idx.byRef[norm]; ok {
		return path, true
	}
	return "", false
}

var refDesignatorRe = regexp.MustCompile(`^(theorem|definition|lemma|corollary|proposition|example|remark) \d+(?:\.\d+)*`)

// refDesignator returns the leading "type number" designator of a
// normalized title, or "" when it has none.
func refDesignator(norm string) string {
	return refDesignatorRe.FindString(norm)
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

func typeKey(t doctree.AtomType, normTitle string) string {
	return string(t) + "\x00" + normTitle
}

// FilePath is the emitted file for a node: structural nodes own a
// directory with an index file, leaves a single file. The root is the
// top-level index.
func FilePath(n *doctree.Node) string {
	if n.Level == 0 {
		return "index.md"
	}
	if len(n.Children) > 0 || n.Kind.IsContainer() {
		return n.ResolvedPath + "/index.md"
	}
	return n.ResolvedPath + ".md"
}

// Resolver performs the two passes.
type Resolver struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Resolver {
	return &Resolver{log: log}
}

// Register is pass 1: assign each node its canonical relative path, derived
// from kind, position within parent, and slugified title, and build the
// title indexes. Slug collisions get a traversal-order suffix. Re-running
// on an unchanged tree assigns identical paths.
func (r *Resolver) Register(tree *doctree.Tree) *Index {
	idx := &Index{
		byTitle: make(map[string]string),
		byType:  make(map[string]string),
		byRef:   make(map[string]string),
	}
	seen := map[string]bool{}

	var walk func(n *doctree.Node, parentPath string)
	walk = func(n *doctree.Node, parentPath string) {
		for i, c := range n.Children {
			seg := pathSegment(c, i+1)
			path := seg
			if parentPath != "" {
				path = parentPath + "/" + seg
			}
			for s := 2; seen[path]; s++ {
				path = fmt.Sprintf("%s-%d", strings.TrimSuffix(path, fmt.Sprintf("-%d", s-1)), s)
			}
			seen[path] = true
			c.ResolvedPath = path

			norm := normalizeTitle(c.Title)
			if _, dup := idx.byTitle[norm]; !dup {
				idx.byTitle[norm] = FilePath(c)
			}
			if c.AtomType != "" {
				key := typeKey(c.AtomType, norm)
				if _, dup := idx.byType[key]; !dup {
					idx.byType[key] = FilePath(c)
				}
			}
			if d := refDesignator(norm); d != "" && d != norm {
				if _, dup := idx.byRef[d]; !dup {
					idx.byRef[d] = FilePath(c)
				}
			}
			walk(c, path)
		}
	}

	tree.Root.ResolvedPath = ""
	idx.byTitle[normalizeTitle(tree.Root.Title)] = FilePath(tree.Root)
	walk(tree.Root, "")
	return idx
}

// pathSegment derives one path element from (kind, position, title).
// Content leaves omit the kind; structural nodes carry it.
func pathSegment(n *doctree.Node, pos int) string {
	slug := doctree.Slugify(n.Title)
	if n.Kind == doctree.KindContent {
		return fmt.Sprintf("%02d-%s", pos, slug)
	}
	return fmt.Sprintf("%02d-%s-%s", pos, n.Kind, slug)
}

var placeholderRe = regexp.MustCompile(`\[([^\]]+)\]\(#\)`)

// Rewrite is pass 2: resolve title references in every FILLED node's
// lemmas and related content. Unresolved references stay as explicit
// placeholder links with a LinkUnresolved warning; they are never dropped.
// Idempotent: already-resolved links are left untouched and a second run
// over an unchanged tree produces identical output.
func (r *Resolver) Rewrite(tree *doctree.Tree, idx *Index) (resolved, unresolved int) {
	tree.Walk(func(n *doctree.Node) bool {
		if n.Status != doctree.StatusFilled || n.Atom == nil {
			return true
		}
		from := FilePath(n)

		for i, lemma := range n.Atom.Lemmas {
			link, ok := r.resolveRef(n, idx, from, lemma)
			if ok {
				resolved++
			} else if link != lemma {
				unresolved++
			}
			n.Atom.Lemmas[i] = link
		}

		if n.Atom.RelatedContent != "" {
			n.Atom.RelatedContent = placeholderRe.ReplaceAllStringFunc(n.Atom.RelatedContent, func(m string) string {
				title := placeholderRe.FindStringSubmatch(m)[1]
				if path, ok := idx.Resolve(title, n.AtomType); ok {
					resolved++
					return markdownLink(title, RelativePath(from, path))
				}
				unresolved++
				r.warnUnresolved(n, title)
				return m
			})
		}
		return true
	})
	return resolved, unresolved
}

// resolveRef turns one reference into a markdown link. Raw titles and
// unresolved placeholders are resolution candidates; anything already
// linking to a real path passes through unchanged.
func (r *Resolver) resolveRef(n *doctree.Node, idx *Index, from, ref string) (string, bool) {
	title := strings.TrimSpace(ref)
	if m := placeholderRe.FindStringSubmatch(title); m != nil {
		title = m[1]
	} else if strings.HasPrefix(title, "[") {
		return ref, false // already a resolved link
	}

	if path, ok := idx.Resolve(title, n.AtomType); ok {
		return markdownLink(title, RelativePath(from, path)), true
	}
	r.warnUnresolved(n, title)
	return markdownLink(title, "#"), false
}

func (r *Resolver) warnUnresolved(n *doctree.Node, title string) {
	detail := fmt.Sprintf("no node matches %q", title)
	for _, w := range n.Warnings {
		if w.Kind == doctree.WarnLinkUnresolved && w.Detail == detail {
			return // already recorded on a previous run
		}
	}
	r.log.Warn("unresolved cross-reference", "node", n.ID, "ref", title)
	n.Warn(doctree.WarnLinkUnresolved, detail)
}

func markdownLink(text, target string) string {
	return fmt.Sprintf("[%s](%s)", text, target)
}

// RelativePath computes the link target from one emitted file to another.
func RelativePath(fromFile, toFile string) string {
	fromDirs := strings.Split(fromFile, "/")
	fromDirs = fromDirs[:len(fromDirs)-1] // drop the file name
	toParts := strings.Split(toFile, "/")

	common := 0
	for common < len(fromDirs) && common < len(toParts)-1 && fromDirs[common] == toParts[common] {
		common++
	}

	var parts []string
	for range len(fromDirs) - common {
		parts = append(parts, "..")
	}
	parts = append(parts, toParts[common:]...)
	rel := strings.Join(parts, "/")
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel
}
