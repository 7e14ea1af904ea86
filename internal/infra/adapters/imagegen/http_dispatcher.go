package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ai-image-queue/internal/config"
	"ai-image-queue/internal/domain"
	"ai-image-queue/internal/domain/model"
	"ai-image-queue/internal/domain/ports/adapter"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var _ adapter.ImageWorkerAdapter = (*HTTPDispatcher)(nil)

// HTTPDispatcher hands jobs to the external generation worker over HTTP.
// The worker answers asynchronously through the callback URL; the response to
// the dispatch request itself carries no job outcome.
type HTTPDispatcher struct {
	baseURL     string
	callbackURL string
	client      *http.Client
	log         *zerolog.Logger
}

func NewHTTPDispatcher(cfg *config.WorkerConfig, logger *zerolog.Logger) *HTTPDispatcher {
	l := logger.With().Str("component", "HTTPDispatcher").Logger()
	return &HTTPDispatcher{
		baseURL:     cfg.BaseURL,
		callbackURL: cfg.CallbackURL,
		client:      &http.Client{Timeout: cfg.DispatchTimeout},
		log:         &l,
	}
}

type dispatchPayload struct {
	Ref         string  `json:"ref"`
	Action      string  `json:"action"` // "imagine" | "button"
	Prompt      string  `json:"prompt,omitempty"`
	Style       string  `json:"style,omitempty"`
	Quality     string  `json:"quality,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Button      string  `json:"button,omitempty"`
	MessageID   string  `json:"messageId,omitempty"`
	CallbackURL string  `json:"callbackUrl"`
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, job *model.Job) error {
	payload := dispatchPayload{Ref: job.ID, CallbackURL: d.callbackURL}

	switch req := job.Request.(type) {
	case model.GenerateRequest:
		payload.Action = "imagine"
		payload.Prompt = req.Prompt
		payload.Style = req.Style
		payload.Quality = req.Quality
		payload.Temperature = req.Temperature
	case model.ButtonRequest:
		payload.Action = "button"
		payload.Button = req.Label
		payload.MessageID = req.MessageID
	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownRequest, job.Request)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/imagine", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("worker dispatch: unexpected status %d", resp.StatusCode)
	}
	d.log.Debug().Str("job_id", job.ID).Str("action", payload.Action).Msg("job dispatched to worker")
	return nil
}
