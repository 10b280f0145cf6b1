package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/Kalinx99/TelScan/internal/domain"
)

// registerRoutes sets up all HTTP routes on the server mux. Everything
// under /api/ sits behind the bearer token.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/notify/test", s.handleNotifyTest)
	apiMux.HandleFunc("POST /api/join", s.handleJoin)
	apiMux.HandleFunc("GET /api/tasks/{id}", s.handleTaskGet)
	apiMux.HandleFunc("POST /api/tasks/{id}/stop", s.handleTaskStop)
	apiMux.HandleFunc("POST /api/export", s.handleExport)
	apiMux.HandleFunc("GET /api/export/{id}/download", s.handleExportDownload)
	mux.Handle("/api/", s.authMiddleware(apiMux))

	mux.HandleFunc("/", handleNotFound)
}

type statusResponse struct {
	Session string `json:"session"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Session: string(s.bridge.Status())})
}

type notifyTestRequest struct {
	Target string `json:"target"`
	Secret string `json:"secret"`
}

// handleNotifyTest fires a test alert at the given webhook, or at the
// globally configured one when the body names no target. The delivery
// outcome is always reported, never an HTTP error.
func (s *Server) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	var req notifyTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target, secret := req.Target, req.Secret
	if target == "" {
		settings, err := s.store.Settings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "loading settings: "+err.Error())
			return
		}
		target, secret = settings.WebhookURL, settings.WebhookSecret
	}

	outcome := s.notifier.Notify(target, secret, "TelScan test",
		"#### **TelScan test**\n\nIf you can read this, webhook delivery works.\n", true)
	writeJSON(w, http.StatusOK, map[string]string{"outcome": outcome})
}

type joinRequest struct {
	Links        []string `json:"links"`
	DelaySeconds int      `json:"delaySeconds"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.jobs.StartBulkJoin(req.Links, req.DelaySeconds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"taskId": id})
}

type taskResponse struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Status   string   `json:"status"`
	Current  int      `json:"current"`
	Total    int      `json:"total"`
	Records  int      `json:"records"`
	FilePath string   `json:"filePath,omitempty"`
	Log      []string `json:"log"`
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{
		ID:       snap.ID,
		Kind:     string(snap.Kind),
		Status:   string(snap.Status),
		Current:  snap.Current,
		Total:    snap.Total,
		Records:  snap.Records,
		FilePath: snap.FilePath,
		Log:      snap.Log,
	})
}

func (s *Server) handleTaskStop(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.RequestStop(r.PathValue("id")); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stop requested"})
}

type exportRequest struct {
	Group  string `json:"group"`
	Format string `json:"format"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.jobs.StartExport(req.Group, req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"taskId": id})
}

func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if snap.Status != domain.TaskCompleted || snap.FilePath == "" {
		writeError(w, http.StatusConflict, "export has no file yet")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(snap.FilePath)+`"`)
	http.ServeFile(w, r, snap.FilePath)
}
