package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ai-image-queue/internal/config"
	"ai-image-queue/internal/domain/ports/adapter"
)

var _ adapter.CreditGateway = (*HTTPCreditGateway)(nil)

// HTTPCreditGateway calls the billing collaborator to return on-demand
// credits after confirmed job failures.
type HTTPCreditGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPCreditGateway(cfg *config.BillingConfig) *HTTPCreditGateway {
	return &HTTPCreditGateway{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type refundRequest struct {
	UserID     string `json:"userId"`
	CreditType string `json:"creditType"`
	Amount     int    `json:"amount"`
	Reason     string `json:"reason"`
}

func (g *HTTPCreditGateway) RefundOnDemand(ctx context.Context, userID string) error {
	body, err := json.Marshal(refundRequest{
		UserID:     userID,
		CreditType: "on_demand",
		Amount:     1,
		Reason:     "image generation failed",
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/v1/credits/refund", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("billing refund: unexpected status %d", resp.StatusCode)
	}
	return nil
}
