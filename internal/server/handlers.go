package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gameforge/forge/internal/events"
	"github.com/gameforge/forge/internal/orchestrator"
	"github.com/gameforge/forge/internal/session"
	"github.com/gameforge/forge/internal/store"
)

type healthResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version"`
	Features map[string]bool `json:"features"`
}

type generateRequest struct {
	Prompt      string `json:"prompt"`
	ProjectName string `json:"project_name,omitempty"`
	GameType    string `json:"game_type,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

type generateResponse struct {
	Success     bool   `json:"success"`
	GameCode    string `json:"game_code,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Summary     string `json:"summary,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

type reviewRequest struct {
	GameCode  string `json:"game_code"`
	Feedback  string `json:"feedback"`
	SessionID string `json:"session_id,omitempty"`
}

type reviewResponse struct {
	Success        bool   `json:"success"`
	ImprovedCode   string `json:"improved_code,omitempty"`
	ChangesSummary string `json:"changes_summary,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

type templateResponse struct {
	Status      string `json:"status"`
	GameType    string `json:"game_type"`
	Template    string `json:"template"`
	Description string `json:"description"`
}

type fileListResponse struct {
	Status    string           `json:"status"`
	Directory string           `json:"directory"`
	Files     []store.FileInfo `json:"files"`
	Count     int              `json:"count"`
}

type fileReadResponse struct {
	Status   string `json:"status"`
	Content  string `json:"content"`
	FilePath string `json:"file_path"`
	Filename string `json:"filename"`
}

type createProjectRequest struct {
	ProjectName   string `json:"project_name"`
	IncludeAssets *bool  `json:"include_assets,omitempty"`
}

type createProjectResponse struct {
	Status             string            `json:"status"`
	ProjectDir         string            `json:"project_dir"`
	CreatedDirectories []string          `json:"created_directories"`
	ProjectInfo        store.ProjectInfo `json:"project_info"`
}

type errorEnvelope struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	features := map[string]bool{
		"file_operations": true,
		"phaser_tools":    true,
	}
	available := false
	for _, d := range s.generator.Describe() {
		features["backend_"+d.Name] = d.Available
		if d.Available {
			available = true
		}
	}
	features["game_generation"] = available

	status, code := "healthy", http.StatusOK
	if !available {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, healthResponse{Status: status, Version: s.version, Features: features})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeDetail(w, http.StatusBadRequest, "prompt is required")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = session.NewID()
	}
	s.logger.Debug("generate request received",
		"session_id", sessionID,
		"project", req.ProjectName,
		"game_type", req.GameType,
		"request_id", RequestID(r.Context()),
	)

	result, err := s.generator.GenerateGame(r.Context(), sessionID, req.Prompt, orchestrator.Options{
		GameName: req.ProjectName,
		MaxTurns: s.maxTurns,
	})
	if err != nil {
		s.writeJSON(w, generationFailureCode(err), generateResponse{Success: false, Error: err.Error(), SessionID: sessionID})
		return
	}

	if req.ProjectName != "" && result.Code != "" {
		saved, err := s.files.Save(result.Filename, result.Code, req.ProjectName)
		if err != nil {
			s.writeJSON(w, saveFailureCode(err), generateResponse{Success: false, Error: err.Error(), SessionID: sessionID})
			return
		}
		s.bus.Publish(events.Event{
			Type:       events.EventTypeGameSaved,
			EntityType: events.EntityServer,
			EntityID:   req.ProjectName,
			Severity:   events.SeverityInfo,
			Payload:    events.GameSaved{Project: req.ProjectName, Filename: saved.Filename, Path: saved.Path},
		})
	}

	s.writeJSON(w, http.StatusOK, generateResponse{
		Success:     true,
		GameCode:    result.Code,
		Filename:    result.Filename,
		Summary:     result.Summary,
		ProjectName: req.ProjectName,
		SessionID:   sessionID,
	})
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.GameCode) == "" {
		s.writeDetail(w, http.StatusBadRequest, "game_code is required")
		return
	}
	if strings.TrimSpace(req.Feedback) == "" {
		s.writeDetail(w, http.StatusBadRequest, "feedback is required")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = session.NewID()
	}

	result, err := s.generator.ReviewGame(r.Context(), sessionID, req.GameCode, req.Feedback)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoReviewBackends) {
			s.writeDetail(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.writeJSON(w, generationFailureCode(err), reviewResponse{Success: false, Error: err.Error(), SessionID: sessionID})
		return
	}

	// A review reply without a document leaves the original code as is.
	improved := result.Code
	if improved == "" {
		improved = req.GameCode
	}
	s.writeJSON(w, http.StatusOK, reviewResponse{
		Success:        true,
		ImprovedCode:   improved,
		ChangesSummary: result.Summary,
		SessionID:      sessionID,
	})
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	gameType := r.PathValue("gameType")
	tpl := s.library.Get(gameType)
	s.writeJSON(w, http.StatusOK, templateResponse{
		Status:      "success",
		GameType:    gameType,
		Template:    tpl.Markup,
		Description: tpl.Description,
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, _ *http.Request) {
	s.listFiles(w, "")
}

func (s *Server) handleProjectFiles(w http.ResponseWriter, r *http.Request) {
	s.listFiles(w, r.PathValue("project"))
}

func (s *Server) listFiles(w http.ResponseWriter, project string) {
	dir := s.files.Root()
	if project != "" {
		dir = filepath.Join(dir, project)
	}
	files, err := s.files.List(project)
	switch {
	case errors.Is(err, store.ErrInvalidName):
		s.writeDetail(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, fs.ErrNotExist):
		s.writeJSON(w, http.StatusNotFound, errorEnvelope{Status: "error", Error: fmt.Sprintf("Directory not found: %s", dir)})
		return
	case err != nil:
		s.writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if files == nil {
		files = []store.FileInfo{}
	}
	s.writeJSON(w, http.StatusOK, fileListResponse{Status: "success", Directory: dir, Files: files, Count: len(files)})
}

func (s *Server) handleProjectFile(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	filename := r.PathValue("filename")
	path := filepath.Join(s.files.Root(), project, filename)

	content, err := s.files.Read(filename, project)
	switch {
	case errors.Is(err, store.ErrInvalidName):
		s.writeDetail(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, fs.ErrNotExist):
		s.writeJSON(w, http.StatusNotFound, errorEnvelope{Status: "error", Error: fmt.Sprintf("File not found: %s", path)})
		return
	case err != nil:
		s.writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, fileReadResponse{
		Status:   "success",
		Content:  content,
		FilePath: path,
		Filename: filename,
	})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProjectName) == "" {
		s.writeDetail(w, http.StatusBadRequest, "project_name is required")
		return
	}
	includeAssets := true
	if req.IncludeAssets != nil {
		includeAssets = *req.IncludeAssets
	}

	info, err := s.files.CreateProject(req.ProjectName, includeAssets)
	switch {
	case errors.Is(err, store.ErrInvalidName):
		s.writeDetail(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("project created", "project", info.Name, "request_id", RequestID(r.Context()))
	s.writeJSON(w, http.StatusOK, createProjectResponse{
		Status:             "success",
		ProjectDir:         filepath.Join(s.files.Root(), info.Name),
		CreatedDirectories: info.Structure,
		ProjectInfo:        info,
	})
}

// generationFailureCode maps orchestration errors to response codes:
// exhausted fallbacks are an upstream failure, anything else is internal.
func generationFailureCode(err error) int {
	var exhaustion *orchestrator.ExhaustionError
	if errors.As(err, &exhaustion) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func saveFailureCode(err error) int {
	if errors.Is(err, store.ErrInvalidName) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeDetail(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, detailResponse{Detail: detail})
}
