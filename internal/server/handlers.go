package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/S-feLayer/SafeLayer-Chat/internal/adapter"
	"github.com/S-feLayer/SafeLayer-Chat/internal/audit"
	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
	"github.com/S-feLayer/SafeLayer-Chat/internal/redaction"
	"github.com/S-feLayer/SafeLayer-Chat/internal/requestctx"
	"github.com/S-feLayer/SafeLayer-Chat/internal/session"
)

type redactOptions struct {
	Aggressive     bool                   `json:"aggressive_mode"`
	Sensitivity    string                 `json:"sensitivity_level,omitempty"`
	CustomPatterns []detect.CustomPattern `json:"custom_patterns,omitempty"`
}

type redactRequest struct {
	Content     string        `json:"content"`
	Text        string        `json:"text"` // accepted alias for content
	ContentType string        `json:"content_type,omitempty"`
	SessionID   string        `json:"session_id,omitempty"`
	Options     redactOptions `json:"options"`
}

type redactResponse struct {
	Success          bool                    `json:"success"`
	RedactedContent  string                  `json:"redacted_content,omitempty"`
	DetectedPatterns []string                `json:"detected_patterns,omitempty"`
	EntitySummary    []session.EntitySummary `json:"entity_summary,omitempty"`
	ProcessingTimeMS int64                   `json:"processing_time_ms"`
	SessionID        string                  `json:"session_id,omitempty"`
	Error            string                  `json:"error,omitempty"`
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req redactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}

	content := req.Content
	if content == "" {
		content = req.Text
	}
	contentType := adapter.ContentType(req.ContentType)
	if req.ContentType == "" {
		contentType = adapter.ContentText
	}
	if !contentType.Valid() {
		writeError(w, http.StatusBadRequest, "unsupported_format",
			"unsupported content_type: "+req.ContentType)
		return
	}

	doc, err := adapter.Extract(contentType, []byte(content))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported_format", err.Error())
		return
	}

	pol := detect.Policy{
		Aggressive:     req.Options.Aggressive,
		Sensitivity:    detect.SensitivityLevel(req.Options.Sensitivity),
		CustomPatterns: req.Options.CustomPatterns,
	}

	res, err := s.redactor.Redact(r.Context(), doc.Text, pol, req.SessionID)
	s.recordAudit(r.Context(), doc, req.SessionID, res, err)
	if err != nil {
		status, code := redactErrorStatus(err)
		writeJSON(w, status, redactResponse{Success: false, Error: code})
		return
	}

	writeJSON(w, http.StatusOK, redactResponse{
		Success:          true,
		RedactedContent:  res.RedactedText,
		DetectedPatterns: typeNames(res.DetectedTypes),
		EntitySummary:    res.EntitySummary,
		ProcessingTimeMS: res.Duration.Milliseconds(),
		SessionID:        res.SessionID,
	})
}

// redactErrorStatus maps pipeline errors to HTTP status and a stable error
// code. Detector failure is a bad gateway: the request was valid, the
// upstream was not there.
func redactErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, redaction.ErrEmptyInput):
		return http.StatusBadRequest, "empty_input"
	case errors.Is(err, redaction.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge, "input_too_large"
	case errors.Is(err, redaction.ErrInvalidPolicy):
		return http.StatusBadRequest, "invalid_policy"
	case errors.Is(err, detect.ErrDetectionUnavailable):
		return http.StatusBadGateway, "detection_unavailable"
	default:
		return http.StatusBadRequest, "redaction_failed"
	}
}

func (s *Server) recordAudit(ctx context.Context, doc *adapter.Document, sessionID string, res *redaction.Result, redactErr error) {
	if s.auditStore == nil {
		return
	}

	ev := &audit.Event{
		SessionID:   sessionID,
		Caller:      requestctx.CallerID(ctx),
		ContentType: string(doc.ContentType),
		Detector:    s.detector.Name(),
		InputSHA256: audit.HashInput(doc.Text),
		Success:     redactErr == nil,
	}
	if res != nil {
		ev.SessionID = res.SessionID
		ev.MasksApplied = res.MasksApplied
		ev.DurationMS = res.Duration.Milliseconds()
		ev.TypeCounts = make(map[string]int, len(res.EntitySummary))
		for _, e := range res.EntitySummary {
			ev.TypeCounts[string(e.Type)]++
		}
	}
	if redactErr != nil {
		ev.Error = redactErr.Error()
	}

	if err := s.auditStore.Record(ctx, ev); err != nil {
		log.Error().Err(err).Msg("recording audit event failed")
	}
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := s.sessions.Snapshot(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"entities":   summary,
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Expire(id); err != nil {
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "session_id": id})
}

type healthResponse struct {
	Status            string `json:"status"`
	Detector          string `json:"detector"`
	DetectorReachable bool   `json:"detector_reachable"`
	ActiveSessions    int    `json:"active_sessions"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:            "ok",
		Detector:          s.detector.Name(),
		DetectorReachable: true,
		ActiveSessions:    s.sessions.Len(),
		UptimeSeconds:     int64(time.Since(s.startTime).Seconds()),
	}
	if h, ok := s.detector.(interface{ Healthy(context.Context) error }); ok {
		if err := h.Healthy(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.DetectorReachable = false
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"formats": adapter.Formats()})
}

func typeNames(types []detect.EntityType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
