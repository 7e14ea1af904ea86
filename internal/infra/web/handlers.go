package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ai-image-queue/internal/domain"
	"ai-image-queue/internal/domain/model"
	"ai-image-queue/internal/usecase"
)

// actionPayload is the wire form of the request sum type, tagged by kind.
type actionPayload struct {
	Kind        string  `json:"kind"` // "generate" | "button"
	Prompt      string  `json:"prompt,omitempty"`
	Style       string  `json:"style,omitempty"`
	Quality     string  `json:"quality,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Button      string  `json:"button,omitempty"`
	MessageID   string  `json:"messageId,omitempty"`
}

func (p actionPayload) toRequest() (model.Request, error) {
	switch model.RequestKind(p.Kind) {
	case model.RequestKindGenerate:
		return model.GenerateRequest{
			Prompt:      p.Prompt,
			Style:       p.Style,
			Quality:     p.Quality,
			Temperature: p.Temperature,
		}, nil
	case model.RequestKindButton:
		return model.ButtonRequest{Label: p.Button, MessageID: p.MessageID}, nil
	default:
		return nil, domain.ErrUnknownRequest
	}
}

func actionOf(req model.Request) *actionPayload {
	switch r := req.(type) {
	case model.GenerateRequest:
		return &actionPayload{
			Kind:        string(model.RequestKindGenerate),
			Prompt:      r.Prompt,
			Style:       r.Style,
			Quality:     r.Quality,
			Temperature: r.Temperature,
		}
	case model.ButtonRequest:
		return &actionPayload{
			Kind:      string(model.RequestKindButton),
			Button:    r.Label,
			MessageID: r.MessageID,
		}
	default:
		return nil
	}
}

type submitRequest struct {
	UserID         string        `json:"userId"`
	OnDemandCredit bool          `json:"onDemandCredit"`
	Action         actionPayload `json:"action"`
}

type jobResponse struct {
	JobID     string         `json:"jobId"`
	Status    string         `json:"status"`
	Position  *int           `json:"queuePosition,omitempty"`
	Progress  int            `json:"progress,omitempty"`
	ImageURL  string         `json:"imageUrl,omitempty"`
	Buttons   []string       `json:"buttons,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Action    *actionPayload `json:"action,omitempty"`
	Expired   bool           `json:"expired,omitempty"`
}

func renderSnapshot(s *usecase.Snapshot) jobResponse {
	resp := jobResponse{
		JobID:     s.JobID,
		Status:    string(s.Status),
		Progress:  s.Progress,
		ImageURL:  s.ImageURL,
		Buttons:   s.Buttons,
		MessageID: s.MessageID,
		Reason:    s.Reason,
		Expired:   s.Expired,
	}
	if s.Status == model.JobStatusQueued && s.Position >= 0 {
		pos := s.Position
		resp.Position = &pos
	}
	if s.Request != nil {
		resp.Action = actionOf(s.Request)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	action, err := req.Action.toRequest()
	if err != nil {
		http.Error(w, "Unknown action kind", http.StatusBadRequest)
		return
	}

	snap, err := s.queueUC.Submit(ctx, req.UserID, action, req.OnDemandCredit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrUnknownRequest) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error().Err(err).Msg("submit failed")
		http.Error(w, "Failed to submit job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, renderSnapshot(snap))
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := chi.URLParam(r, "jobID")
	snap, err := s.queueUC.Poll(ctx, jobID)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("poll failed")
		http.Error(w, "Failed to read job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, renderSnapshot(snap))
}

type workerCallback struct {
	Ref       string   `json:"ref"`
	Status    string   `json:"status"`
	Progress  int      `json:"progress"`
	ImageURL  string   `json:"imageUrl"`
	Buttons   []string `json:"buttons"`
	MessageID string   `json:"messageId"`
	Error     string   `json:"error"`
}

// handleWorkerCallback always answers 200: the worker cannot fix internal
// errors on our side and must not be driven into retry storms by them.
func (s *Server) handleWorkerCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cb workerCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		s.log.Warn().Err(err).Msg("undecodable worker callback")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": false})
		return
	}

	err := s.webhookUC.Handle(ctx, usecase.WorkerUpdate{
		Ref:       cb.Ref,
		Status:    cb.Status,
		Progress:  cb.Progress,
		ImageURL:  cb.ImageURL,
		Buttons:   cb.Buttons,
		MessageID: cb.MessageID,
		Error:     cb.Error,
	})
	if err != nil {
		s.log.Error().Err(err).Str("ref", cb.Ref).Msg("worker callback processing failed")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) sweepHandler(name string, sweep func(ctx context.Context) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := sweep(r.Context())
		if err != nil {
			s.log.Error().Err(err).Str("sweep", name).Msg("sweep failed")
			http.Error(w, "Sweep failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sweep": name, "evicted": n})
	}
}
