package capability

import (
	"fmt"
	"strings"
)

const structureSystemPrompt = "You are a mathematical document analyzer. Respond only with valid JSON."

const structurePrompt = `Analyze this mathematical document and extract its hierarchical outline.

Return a JSON object describing the document tree. Each node must have:
- "title": the section heading
- "kind": one of "book", "chapter", "section", "subsection", "content"
- "level": integer depth (root children are level 1)
- "span_start" / "span_end": character positions of this node's text within the document below
- "children": nested nodes in reading order

Rules:
- Include ALL chapters and major sections you can identify, including front and back matter (preface, index, bibliography).
- Spans of siblings must not overlap and must appear in reading order.
- Page boundaries are marked with "--- page N ---" lines; they are part of the text but not content.

Respond ONLY with valid JSON (no markdown code blocks):
{"title": "Book Title", "author": "Author or null", "outline": [ ... ]}`

// BuildStructurePrompt assembles the structure-proposal request for the
// concatenated document text with page markers.
func BuildStructurePrompt(text, titleHint string) string {
	var sb strings.Builder
	sb.WriteString(structurePrompt)
	sb.WriteString("\n\n")
	if titleHint != "" {
		sb.WriteString(fmt.Sprintf("The document title might be: %q\n", titleHint))
	} else {
		sb.WriteString("Detect the document title from content.\n")
	}
	sb.WriteString("\nDOCUMENT TEXT:\n")
	sb.WriteString(text)
	return sb.String()
}

const atomicitySystemPrompt = "You are a mathematical document analyzer. Respond only with valid JSON."

const atomicityPrompt = `Analyze this mathematical content and determine:
1. Does it contain exactly ONE atomic concept (theorem/definition/lemma/corollary/proposition/example/remark)?
2. If it contains multiple concepts or is a container section (like a chapter overview), it is NOT atomic.

If it is NOT atomic, divide it into at least 2 segments. Look for:
- Theorems, Propositions, Lemmas, Corollaries
- Definitions (often start with "Definition" or "Let X be...")
- Examples, Remarks, Notes
- Proofs (can be separated from the theorem statement)
- Numbered items (1.1, 1.2, ...)

Each segment's "text" must be copied VERBATIM from the content, in order, with no gaps and no overlaps: concatenating all segment texts must reproduce the content exactly. Never cut inside a LaTeX math expression.

Respond ONLY with valid JSON (no markdown code blocks). Either:
{"is_atomic": true, "atom_type": "theorem|definition|lemma|corollary|proposition|example|remark", "reason": "brief explanation"}
or:
{"is_atomic": false, "segments": [{"title": "Theorem 1.2: Intermediate Value Theorem", "atom_type_hint": "theorem", "text": "..."}], "reason": "brief explanation"}`

const atomicityStrictSuffix = `

IMPORTANT: Your previous segmentation did not reconstruct the content exactly. Copy segment texts character-for-character from the content, cover it completely, and keep every LaTeX delimiter pair ($...$, \(...\), \[...\]) inside a single segment.`

// BuildAtomicityPrompt assembles the atomicity-check request. strict adds
// the reconstruction reminder used on the one retry after a failed
// validation.
func BuildAtomicityPrompt(content string, strict bool) string {
	var sb strings.Builder
	sb.WriteString(atomicityPrompt)
	if strict {
		sb.WriteString(atomicityStrictSuffix)
	}
	sb.WriteString("\n\nContent to analyze:\n---\n")
	sb.WriteString(content)
	sb.WriteString("\n---\n")
	return sb.String()
}

const summarySystemPrompt = "You are a mathematical content summarizer. Preserve all LaTeX notation. Respond only with valid JSON."

const summaryPrompt = `You are a mathematician responsible for summarizing mathematical content into a structured format.

IMPORTANT:
- Preserve ALL LaTeX notation exactly as written (e.g., $x^2$, \frac{a}{b}, \int)
- Description and Statement are REQUIRED
- Proof is OPTIONAL (only include if a proof is present in the content)
- Lemmas are OPTIONAL (only include supporting lemmas mentioned in the content, by title)
- Related Content is OPTIONAL (only include if related concepts are discussed)

Return ONLY valid JSON (no markdown code blocks):
{
    "description": "A 1-2 sentence summary explaining what this unit represents and why it matters",
    "statement": "The exact mathematical statement with all LaTeX preserved",
    "proof": "The complete proof if present, null otherwise",
    "lemmas": ["Lemma 2.3", "Lemma 2.4"] or [],
    "related_content": "Brief summary of related concepts mentioned, or null"
}`

// BuildSummaryPrompt assembles the summarization request for one atomic node.
func BuildSummaryPrompt(title, atomTypeHint, content string) string {
	hint := atomTypeHint
	if hint == "" {
		hint = "mathematical concept"
	}
	var sb strings.Builder
	sb.WriteString(summaryPrompt)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("Atom Type: %s\nTitle: %s\n", hint, title))
	sb.WriteString("\nContent to summarize:\n---\n")
	sb.WriteString(content)
	sb.WriteString("\n---\n")
	return sb.String()
}

const classifySystemPrompt = "You classify document sections. Respond with a single word."

const classifyPrompt = `Classify this document section as either "knowledge" or "meta".

- "knowledge": Contains substantive educational, informational, or instructional content that readers would want to study or reference
- "meta": Administrative content like preface, acknowledgements, table of contents, index, copyright notices, author bios, etc.

Respond with just one word: "knowledge" or "meta"`

// BuildClassifyPrompt assembles the knowledge/meta classification request.
func BuildClassifyPrompt(title, contentPreview string) string {
	if len(contentPreview) > 500 {
		contentPreview = contentPreview[:500]
	}
	var sb strings.Builder
	sb.WriteString(classifyPrompt)
	sb.WriteString("\n\nSection Title: ")
	sb.WriteString(title)
	sb.WriteString("\nContent Preview: ")
	sb.WriteString(contentPreview)
	sb.WriteString("\n")
	return sb.String()
}
