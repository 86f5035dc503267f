// Package atomizer drives every knowledge node to a terminal atomization
// status through bounded recursive splitting. Splitting is oracle-driven
// but fail-safe: any oracle malfunction resolves to ATOMIC, so the engine
// always terminates with a fully-terminal tree.
package atomizer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"mathatom/internal/capability"
	"mathatom/internal/doctree"
)

// Config controls the splitting engine.
type Config struct {
	// MaxDepth caps split recursion per branch. A split at depth MaxDepth
	// is refused and the node is forced ATOMIC with a warning.
	MaxDepth int
	// MinContentLength short-circuits short fragments to ATOMIC without
	// consulting the oracle.
	MinContentLength int
	// MaxWorkers bounds concurrent subtree processing (and therefore
	// concurrent oracle calls).
	MaxWorkers int
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 10
	}
	if c.MinContentLength <= 0 {
		c.MinContentLength = 500
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	return c
}

// Atomizer is the recursive splitting engine.
type Atomizer struct {
	oracle *capability.AtomicityOracle
	cfg    Config
	log    *slog.Logger
}

func New(oracle *capability.AtomicityOracle, cfg Config, log *slog.Logger) *Atomizer {
	return &Atomizer{oracle: oracle, cfg: cfg.withDefaults(), log: log}
}

// Run processes the whole tree. Workers own disjoint subtrees: a node is
// processed by exactly one worker, and children it spawns re-enter the
// queue, so no two workers ever touch the same node. Returns ctx.Err() on
// cancellation; nodes not yet reached stay PENDING for resume.
func (a *Atomizer) Run(ctx context.Context, tree *doctree.Tree) error {
	wl := newWorklist()
	wl.push(workItem{node: tree.Root, depth: 0})

	var wg sync.WaitGroup
	for range a.cfg.MaxWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				it, ok := wl.pop()
				if !ok {
					return
				}
				if ctx.Err() != nil {
					wl.finish()
					wl.close()
					return
				}
				a.process(ctx, tree, wl, it)
				wl.finish()
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// process handles one worklist item.
func (a *Atomizer) process(ctx context.Context, tree *doctree.Tree, wl *worklist, it workItem) {
	n := it.node

	// Meta subtrees are retained for navigation but never atomized.
	if n.Category == doctree.CategoryMeta {
		return
	}

	// Nodes with children are structural: each child is an independent
	// subtree and may be processed in parallel. Kind alone does not make a
	// node structural; a container-kind leaf that owns text (flat outlines
	// produce these) is knowledge content and must be classified.
	if len(n.Children) > 0 || (n.Kind.IsContainer() && n.Text() == "") {
		for _, c := range n.Children {
			wl.push(workItem{node: c, depth: it.depth})
		}
		return
	}

	if n.Status.Terminal() {
		return
	}

	content := n.Text()

	// Short fragments are assumed indivisible; skip the oracle entirely.
	if len(content) < a.cfg.MinContentLength {
		n.Status = doctree.StatusAtomic
		n.AtomType = doctree.ParseAtomType(n.AtomHint)
		return
	}

	verdict, err := a.oracle.Check(ctx, content, false)
	if err != nil {
		if ctx.Err() != nil {
			return // stays PENDING for resume
		}
		a.log.Warn("atomicity check unavailable, forcing atomic", "node", n.ID, "error", err)
		n.Status = doctree.StatusAtomic
		n.Warn(doctree.WarnClassificationUnavailable, err.Error())
		return
	}

	if verdict.IsAtomic || len(verdict.Segments) < 2 {
		n.Status = doctree.StatusAtomic
		if t := doctree.ParseAtomType(verdict.AtomType); t != "" {
			n.AtomType = t
		} else {
			n.AtomType = doctree.ParseAtomType(n.AtomHint)
		}
		return
	}

	segs, dropped, verr := validateSegments(content, verdict.Segments)
	if dropped > 0 {
		n.Warn(doctree.WarnInvalidSegmentation, fmt.Sprintf("%d whitespace-only segments dropped", dropped))
	}
	if verr != nil {
		// One stricter retry, then fail safe to ATOMIC.
		segs, verr = a.retryStrict(ctx, n, content)
		if verr != nil {
			if ctx.Err() != nil {
				return
			}
			n.Status = doctree.StatusAtomic
			n.Warn(doctree.WarnInvalidSegmentation, verr.Error())
			return
		}
	}
	if len(segs) < 2 {
		n.Status = doctree.StatusAtomic
		return
	}

	// A valid split exists. Refuse it only when the depth budget is spent.
	if it.depth+1 > a.cfg.MaxDepth {
		n.Status = doctree.StatusAtomic
		n.AtomType = doctree.ParseAtomType(n.AtomHint)
		n.Warn(doctree.WarnDepthExhausted,
			fmt.Sprintf("split refused at depth %d (max %d)", it.depth, a.cfg.MaxDepth))
		return
	}

	children := make([]*doctree.Node, 0, len(segs))
	for i, seg := range segs {
		title := seg.Title
		if title == "" {
			title = fmt.Sprintf("%s Part %d", n.Title, i+1)
		}
		children = append(children, &doctree.Node{
			ID:         tree.UniqueID(doctree.Slugify(title)),
			Title:      title,
			Kind:       doctree.KindContent,
			Category:   doctree.CategoryKnowledge,
			Status:     doctree.StatusPending,
			AtomHint:   seg.AtomTypeHint,
			SourceText: seg.Text,
			PageStart:  n.PageStart,
			PageEnd:    n.PageEnd,
		})
	}
	tree.AttachChildren(n, children)

	// The parent's text is now partitioned among its children; the parent
	// becomes a structural non-leaf and is no longer classified.
	n.SourceText = ""
	n.Status = doctree.StatusNeedsSplitting

	for _, c := range children {
		wl.push(workItem{node: c, depth: it.depth + 1})
	}
}

// retryStrict re-asks the oracle with the reconstruction reminder and
// validates the result.
func (a *Atomizer) retryStrict(ctx context.Context, n *doctree.Node, content string) ([]capability.Segment, error) {
	verdict, err := a.oracle.Check(ctx, content, true)
	if err != nil {
		return nil, fmt.Errorf("strict retry: %w", err)
	}
	if verdict.IsAtomic || len(verdict.Segments) < 2 {
		return nil, fmt.Errorf("strict retry returned no usable segmentation")
	}
	segs, dropped, verr := validateSegments(content, verdict.Segments)
	if dropped > 0 {
		n.Warn(doctree.WarnInvalidSegmentation, fmt.Sprintf("%d whitespace-only segments dropped on retry", dropped))
	}
	if verr != nil {
		return nil, verr
	}
	return segs, nil
}
