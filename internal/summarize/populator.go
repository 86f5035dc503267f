// Package summarize fills atomic nodes with structured summaries from the
// external summarization capability. Summary failures are semantic, not
// mechanical: a node missing its required fields becomes FAILED and is
// surfaced for manual review rather than retried.
package summarize

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"mathatom/internal/capability"
	"mathatom/internal/doctree"
)

// Config controls the populator.
type Config struct {
	// MaxWorkers bounds concurrent summarization calls.
	MaxWorkers int
	// Force re-summarizes nodes that are already FILLED.
	Force bool
}

// Populator drives ATOMIC knowledge nodes to FILLED or FAILED.
type Populator struct {
	oracle *capability.SummaryOracle
	cfg    Config
	log    *slog.Logger
}

func New(oracle *capability.SummaryOracle, cfg Config, log *slog.Logger) *Populator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	return &Populator{oracle: oracle, cfg: cfg, log: log}
}

// Run summarizes every eligible node with bounded concurrency. Nodes are
// independent; no node failure affects its siblings. Returns ctx.Err() on
// cancellation (untouched nodes stay ATOMIC for resume).
func (p *Populator) Run(ctx context.Context, tree *doctree.Tree) error {
	var targets []*doctree.Node
	tree.Walk(func(n *doctree.Node) bool {
		if n.Category == doctree.CategoryMeta {
			return false
		}
		if n.Status == doctree.StatusAtomic || (p.cfg.Force && n.Status == doctree.StatusFilled) {
			targets = append(targets, n)
		}
		return true
	})

	sem := make(chan struct{}, p.cfg.MaxWorkers)
	var wg sync.WaitGroup
	for _, n := range targets {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(n *doctree.Node) {
			defer wg.Done()
			defer func() { <-sem }()
			p.fill(ctx, n)
		}(n)
	}
	wg.Wait()
	return ctx.Err()
}

// fill summarizes one node.
func (p *Populator) fill(ctx context.Context, n *doctree.Node) {
	content := n.Text()
	if content == "" {
		n.Status = doctree.StatusFailed
		n.Warn(doctree.WarnSummaryIncomplete, "no content to summarize")
		return
	}

	hint := string(n.AtomType)
	if hint == "" {
		hint = n.AtomHint
	}

	result, err := p.oracle.Summarize(ctx, n.Title, hint, content)
	if err != nil {
		if ctx.Err() != nil {
			return // stays ATOMIC for resume
		}
		p.log.Warn("summarization failed", "node", n.ID, "error", err)
		n.Status = doctree.StatusFailed
		n.Warn(doctree.WarnSummaryIncomplete, err.Error())
		return
	}

	atom := &doctree.AtomContent{
		Description:    strings.TrimSpace(result.Description),
		Statement:      strings.TrimSpace(result.Statement),
		Proof:          strings.TrimSpace(result.Proof),
		Lemmas:         result.Lemmas,
		RelatedContent: strings.TrimSpace(result.RelatedContent),
	}
	if atom.Description == "" || atom.Statement == "" {
		n.Status = doctree.StatusFailed
		n.Warn(doctree.WarnSummaryIncomplete, "missing description or statement")
		return
	}

	// A proof folded into the statement is separated mechanically; the
	// oracle's layout is not trusted for this.
	if atom.Proof == "" {
		atom.Statement, atom.Proof = SeparateProof(atom.Statement)
	}

	n.Atom = atom
	n.AtomType = FinalizeAtomType(n.AtomType, n.AtomHint, n.Title, atom.Statement)
	n.Status = doctree.StatusFilled
}

// proofMarkers in statement text indicate an embedded proof section.
var proofMarkers = []string{"Proof.", "Proof:", "PROOF."}

// SeparateProof splits a statement at the first proof marker. If no marker
// is present the statement is returned unchanged.
func SeparateProof(statement string) (stmt, proof string) {
	for _, marker := range proofMarkers {
		if i := strings.Index(statement, marker); i >= 0 {
			stmt = strings.TrimSpace(statement[:i])
			proof = strings.TrimSpace(statement[i+len(marker):])
			if stmt != "" {
				return stmt, proof
			}
		}
	}
	return statement, ""
}

// typeKeywords maps leading keywords to atom types, checked against the
// title first, then the statement.
var typeKeywords = []struct {
	word string
	typ  doctree.AtomType
}{
	{"theorem", doctree.AtomTheorem},
	{"definition", doctree.AtomDefinition},
	{"lemma", doctree.AtomLemma},
	{"corollary", doctree.AtomCorollary},
	{"proposition", doctree.AtomProposition},
	{"example", doctree.AtomExample},
	{"remark", doctree.AtomRemark},
}

// FinalizeAtomType picks the node's final atom type: a deterministic
// keyword match on the title or statement overrides the classifier hint,
// which is kept only as a fallback.
func FinalizeAtomType(current doctree.AtomType, hint, title, statement string) doctree.AtomType {
	titleLower := strings.ToLower(title)
	stmtLower := strings.ToLower(statement)
	for _, kw := range typeKeywords {
		if strings.HasPrefix(titleLower, kw.word) {
			return kw.typ
		}
	}
	for _, kw := range typeKeywords {
		if strings.HasPrefix(stmtLower, kw.word) {
			return kw.typ
		}
	}
	if current != "" {
		return current
	}
	return doctree.ParseAtomType(hint)
}
