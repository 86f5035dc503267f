package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleJobTree returns the job's most recent tree snapshot with per-status
// counts. Available from the first structuring checkpoint onward.
func (s *Server) handleJobTree(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	stage, tree, err := s.orchestrator.Store().LatestSnapshot(jobID)
	if err != nil {
		jsonError(w, "no tree snapshot for job", http.StatusNotFound)
		return
	}

	counts := map[string]int{}
	for status, n := range tree.CountByStatus() {
		counts[string(status)] = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":   jobID,
		"stage":    stage,
		"nodes":    tree.Len(),
		"statuses": counts,
		"warnings": tree.CollectWarnings(),
		"tree":     tree.Root,
	})
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	arts, err := s.orchestrator.Store().ListArtifacts(jobID)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(arts) == 0 {
		jsonError(w, "no artifacts for job", http.StatusNotFound)
		return
	}

	paths := make([]string, len(arts))
	for i, a := range arts {
		paths[i] = a.Path
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "artifacts": paths})
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	path := chi.URLParam(r, "*")

	art, err := s.orchestrator.Store().GetArtifact(jobID, path)
	if err != nil {
		jsonError(w, "artifact not found", http.StatusNotFound)
		return
	}

	contentType := "text/markdown; charset=utf-8"
	if path == "links.json" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write([]byte(art.Content))
}
