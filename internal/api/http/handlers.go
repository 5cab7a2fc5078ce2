package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hb-chen/skillgate/internal/agent"
	"github.com/hb-chen/skillgate/internal/skill"
	"github.com/hb-chen/skillgate/internal/storage"
	"github.com/hb-chen/skillgate/pkg/logger"
)

// AgentInfo identifies the gateway in responses.
type AgentInfo struct {
	ID          string
	Description string
}

// Handlers contains HTTP handlers
type Handlers struct {
	pipeline *agent.Pipeline
	info     AgentInfo
	logger   logger.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(pipeline *agent.Pipeline, info AgentInfo, log logger.Logger) *Handlers {
	if log == nil {
		log = logger.Default()
	}
	return &Handlers{
		pipeline: pipeline,
		info:     info,
		logger:   log,
	}
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// SkillsResponse lists what this gateway can run
type SkillsResponse struct {
	AgentID     string             `json:"agent_id"`
	Skills      []string           `json:"skills"`
	Description string             `json:"description"`
	Catalog     []skill.Descriptor `json:"catalog"`
}

// Root handles GET /
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Hello from %s!", h.info.ID),
	})
}

// Skills handles GET /skills
func (h *Handlers) Skills(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	registry := h.pipeline.Registry()
	writeJSON(w, http.StatusOK, SkillsResponse{
		AgentID:     h.info.ID,
		Skills:      registry.Names(),
		Description: h.info.Description,
		Catalog:     registry.List(),
	})
}

// Execute handles POST /execute
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req agent.Request
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		h.logger.Debugf("Failed to decode execute request: %v", err)
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	rec, err := h.pipeline.Execute(r.Context(), req)
	if err != nil {
		var ve *skill.ValidationError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Field: ve.Field})
		case errors.Is(err, skill.ErrSkillNotFound):
			writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Field: "module"})
		default:
			h.logger.Errorf("Execute %s failed: %v", req.Module, err)
			writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "execution could not be recorded"})
		}
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// History handles GET /history
func (h *Handlers) History(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	records, err := h.pipeline.History(r.Context())
	if err != nil {
		h.logger.Errorf("Failed to list history: %v", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to read history"})
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HistoryByID handles GET /history/{execution_id}
func (h *Handlers) HistoryByID(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	id := pathParams["execution_id"]
	rec, err := h.pipeline.Record(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("execution %s not found", id)})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to read execution %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to read history"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// WriteError writes an ErrorResponse; exported for router-level errors
func WriteError(w http.ResponseWriter, status int, msg string) {
	writeError(w, status, ErrorResponse{Error: msg})
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
