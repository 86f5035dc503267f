package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mathatom/internal/atomizer"
	"mathatom/internal/capability"
	"mathatom/internal/config"
	"mathatom/internal/doctree"
	"mathatom/internal/emit"
	"mathatom/internal/filter"
	"mathatom/internal/linker"
	"mathatom/internal/parser"
	"mathatom/internal/store"
	"mathatom/internal/structure"
	"mathatom/internal/summarize"
)

// Oracles bundles the external capabilities one worker needs.
type Oracles struct {
	Structure  *capability.StructureOracle
	Atomicity  *capability.AtomicityOracle
	Summary    *capability.SummaryOracle
	Classifier *capability.Classifier
}

// Worker processes a single document job through every stage.
type Worker struct {
	oracles Oracles
	db      *store.Store
	cfg     config.Config
	log     *slog.Logger
}

func NewWorker(oracles Oracles, db *store.Store, cfg config.Config, log *slog.Logger) *Worker {
	return &Worker{oracles: oracles, db: db, cfg: cfg, log: log}
}

// Process runs the full atomization pipeline for a job. Each stage owns the
// tree exclusively; a snapshot is persisted after every stage so the run
// can be inspected mid-flight.
func (w *Worker) Process(ctx context.Context, job *Job) {
	if job.Snapshot().Status.Done() {
		return // cancelled while queued
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	job.setCancel(cancel)

	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	// Stage 1: extract pages from the upload.
	w.setStage(job, StatusExtracting)
	p, err := parser.ForFile(job.Filename)
	if err != nil {
		w.fail(job, log, "unsupported format", err)
		return
	}
	title, pages, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		w.fail(job, log, "parse", err)
		return
	}
	if len(pages) == 0 {
		w.fail(job, log, "parse", fmt.Errorf("no extractable content"))
		return
	}
	job.SetFileData(nil) // raw bytes are no longer needed
	if job.Title == "" {
		job.SetTitle(title)
	}
	log.Info("parsed document", "pages", len(pages), "title", job.Title)

	// Stage 2: propose the structural outline.
	w.setStage(job, StatusStructuring)
	tree, err := structure.NewBuilder(w.oracles.Structure, w.log).Build(ctx, pages, job.Title)
	if err != nil {
		w.fail(job, log, "structuring", err)
		return
	}
	w.checkpoint(job, StatusStructuring, tree)

	// Stage 3: separate meta from knowledge.
	w.setStage(job, StatusFiltering)
	if err := filter.New(w.oracles.Classifier, w.log).Apply(ctx, tree); err != nil {
		w.fail(job, log, "filtering", err)
		return
	}
	w.checkpoint(job, StatusFiltering, tree)

	// Stage 4: recursive splitting.
	w.setStage(job, StatusAtomizing)
	atom := atomizer.New(w.oracles.Atomicity, atomizer.Config{
		MaxDepth:         w.cfg.MaxRecursionDepth,
		MinContentLength: w.cfg.MinContentLengthForSplit,
		MaxWorkers:       w.cfg.MaxConcurrentAtomize,
	}, w.log)
	if err := atom.Run(ctx, tree); err != nil {
		w.fail(job, log, "atomizing", err)
		return
	}
	w.checkpoint(job, StatusAtomizing, tree)

	// Stage 5: fill atoms with structured summaries.
	w.setStage(job, StatusSummarizing)
	pop := summarize.New(w.oracles.Summary, summarize.Config{
		MaxWorkers: w.cfg.MaxConcurrentSummary,
	}, w.log)
	if err := pop.Run(ctx, tree); err != nil {
		w.fail(job, log, "summarizing", err)
		return
	}
	w.checkpoint(job, StatusSummarizing, tree)

	// Stage 6: two-pass cross-reference resolution.
	w.setStage(job, StatusLinking)
	res := linker.New(w.log)
	idx := res.Register(tree)
	resolved, unresolved := res.Rewrite(tree, idx)
	log.Info("links resolved", "resolved", resolved, "unresolved", unresolved)
	w.checkpoint(job, StatusLinking, tree)

	// Stage 7: render artifacts.
	w.setStage(job, StatusEmitting)
	arts, err := emit.New(w.log).Emit(tree)
	if err != nil {
		w.fail(job, log, "emitting", err)
		return
	}
	if err := w.db.SaveArtifacts(job.ID, arts); err != nil {
		log.Error("artifact persistence failed", "error", err)
		job.AddError(fmt.Sprintf("save artifacts: %s", err))
	}
	if err := w.writeFiles(job.ID, arts); err != nil {
		log.Error("artifact write failed", "error", err)
		job.AddError(fmt.Sprintf("write artifacts: %s", err))
	}

	final := finalStatus(tree, job)
	prog := treeProgress(tree)
	prog.Artifacts = len(arts)
	job.SetProgress(prog)
	w.setStage(job, final)
	log.Info("job finished", "status", final,
		"nodes", prog.TotalNodes, "filled", prog.FilledNodes,
		"failed", prog.FailedNodes, "warnings", prog.Warnings)
}

// setStage updates the in-memory job and mirrors it to the database.
func (w *Worker) setStage(job *Job, status JobStatus) {
	job.SetStatus(status)
	w.persistJob(job)
}

// checkpoint saves a tree snapshot for the stage just completed and
// refreshes the job's tree counts.
func (w *Worker) checkpoint(job *Job, status JobStatus, tree *doctree.Tree) {
	job.SetProgress(treeProgress(tree))
	if _, err := w.db.SaveSnapshot(job.ID, string(status), tree); err != nil {
		w.log.Error("snapshot failed", "job_id", job.ID, "stage", status, "error", err)
		job.AddError(fmt.Sprintf("snapshot %s: %s", status, err))
	}
	w.persistJob(job)
}

func (w *Worker) fail(job *Job, log *slog.Logger, stage string, err error) {
	status := StatusFailed
	if job.cancelled(err) {
		status = StatusCancelled
	}
	log.Error(stage+" failed", "error", err)
	job.AddError(fmt.Sprintf("%s: %s", stage, err))
	job.SetStatus(status)
	w.persistJob(job)
}

// cancelled reports whether an error is this job's own cancellation.
func (j *Job) cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (w *Worker) persistJob(job *Job) {
	snap := job.Snapshot()
	rec := store.JobRecord{
		ID:        snap.ID,
		Filename:  snap.Filename,
		Stage:     string(snap.Status),
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	}
	if len(snap.Progress.Errors) > 0 {
		rec.Error = strings.Join(snap.Progress.Errors, "; ")
	}
	if err := w.db.SaveJob(rec); err != nil {
		w.log.Error("job persistence failed", "job_id", snap.ID, "error", err)
	}
}

// writeFiles mirrors the artifacts onto disk under the output directory.
func (w *Worker) writeFiles(jobID string, arts []emit.Artifact) error {
	if w.cfg.OutputDir == "" {
		return nil
	}
	root := filepath.Join(w.cfg.OutputDir, jobID)
	for _, a := range arts {
		path := filepath.Join(root, filepath.FromSlash(a.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

func treeProgress(tree *doctree.Tree) Progress {
	counts := tree.CountByStatus()
	return Progress{
		TotalNodes:  tree.Len(),
		AtomicNodes: counts[doctree.StatusAtomic],
		FilledNodes: counts[doctree.StatusFilled],
		FailedNodes: counts[doctree.StatusFailed],
		Warnings:    len(tree.CollectWarnings()),
	}
}

// finalStatus grades a finished run: failed units with nothing filled is a
// failure, failed units alongside filled ones is partial, warnings alone
// still count as completed.
func finalStatus(tree *doctree.Tree, job *Job) JobStatus {
	counts := tree.CountByStatus()
	failed := counts[doctree.StatusFailed]
	filled := counts[doctree.StatusFilled]
	switch {
	case failed > 0 && filled == 0:
		return StatusFailed
	case failed > 0 || len(job.Snapshot().Progress.Errors) > 0:
		return StatusPartial
	default:
		return StatusCompleted
	}
}
