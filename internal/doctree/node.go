package doctree

import "strings"

// Kind is the structural role of a node in the document hierarchy.
type Kind string

const (
	KindBook       Kind = "book"
	KindChapter    Kind = "chapter"
	KindSection    Kind = "section"
	KindSubsection Kind = "subsection"
	KindContent    Kind = "content"
)

// IsContainer reports whether a kind usually holds other nodes rather than
// content. Container kinds get directory-style output paths; a
// container-kind leaf that owns text is still treated as content.
func (k Kind) IsContainer() bool {
	return k == KindBook || k == KindChapter
}

// Status is the atomization state of a node.
type Status string

const (
	StatusPending        Status = "pending"
	StatusNeedsSplitting Status = "needs_splitting"
	StatusAtomic         Status = "atomic"
	StatusFilled         Status = "filled"
	StatusFailed         Status = "failed"
)

// Terminal reports whether a status is an end state for a leaf node.
func (s Status) Terminal() bool {
	return s == StatusAtomic || s == StatusFilled || s == StatusFailed
}

// AtomType classifies an atomic content unit.
type AtomType string

const (
	AtomTheorem     AtomType = "theorem"
	AtomDefinition  AtomType = "definition"
	AtomLemma       AtomType = "lemma"
	AtomCorollary   AtomType = "corollary"
	AtomProposition AtomType = "proposition"
	AtomExample     AtomType = "example"
	AtomRemark      AtomType = "remark"
)

// ParseAtomType maps an oracle hint string to an AtomType. Unknown or empty
// hints return "" — atom_type is optional until summarization finalizes it.
func ParseAtomType(s string) AtomType {
	switch t := AtomType(strings.ToLower(strings.TrimSpace(s))); t {
	case AtomTheorem, AtomDefinition, AtomLemma, AtomCorollary,
		AtomProposition, AtomExample, AtomRemark:
		return t
	}
	return ""
}

// Category separates substantive content from navigational front/back matter.
type Category string

const (
	CategoryKnowledge Category = "knowledge"
	CategoryMeta      Category = "meta"
)

// WarningKind identifies a non-fatal condition recorded against a node.
type WarningKind string

const (
	WarnClassificationUnavailable WarningKind = "classification_unavailable"
	WarnInvalidSegmentation       WarningKind = "invalid_segmentation"
	WarnSummaryIncomplete         WarningKind = "summary_incomplete"
	WarnLinkUnresolved            WarningKind = "link_unresolved"
	WarnDepthExhausted            WarningKind = "depth_exhausted"
)

// Warning is a non-fatal condition attached to a node and surfaced in the
// final job report.
type Warning struct {
	Kind   WarningKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

// AtomContent is the structured summary of an atomic unit. Description and
// Statement are required; a node is only FILLED when both are non-empty.
type AtomContent struct {
	Description    string   `json:"description"`
	Statement      string   `json:"statement"`
	Proof          string   `json:"proof,omitempty"`
	Lemmas         []string `json:"lemmas,omitempty"`
	RelatedContent string   `json:"related_content,omitempty"`
}

// Node is one unit of document structure. SourceText is the raw text owned
// by the node until a split partitions it among new children.
type Node struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Kind         Kind        `json:"kind"`
	Level        int         `json:"level"`
	Content      string      `json:"content,omitempty"`
	SourceText   string      `json:"source_text,omitempty"`
	Category     Category    `json:"category"`
	Status       Status      `json:"atomization_status"`
	AtomType     AtomType    `json:"atom_type,omitempty"`
	AtomHint     string      `json:"atom_hint,omitempty"`
	Atom         *AtomContent `json:"atom_content,omitempty"`
	ResolvedPath string      `json:"resolved_path,omitempty"`
	Warnings     []Warning   `json:"warnings,omitempty"`
	PageStart    int         `json:"page_start,omitempty"`
	PageEnd      int         `json:"page_end,omitempty"`
	Children     []*Node     `json:"children,omitempty"`
}

// Text returns the raw text for this node: SourceText if still owned,
// otherwise the display content.
func (n *Node) Text() string {
	if n.SourceText != "" {
		return n.SourceText
	}
	return n.Content
}

// Warn records a warning against the node.
func (n *Node) Warn(kind WarningKind, detail string) {
	n.Warnings = append(n.Warnings, Warning{Kind: kind, Detail: detail})
}

// Page is one unit of extracted source text, in reading order.
type Page struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}
