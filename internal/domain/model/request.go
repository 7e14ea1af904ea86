package model

import (
	"encoding/json"
	"fmt"

	"ai-image-queue/internal/domain"
)

type RequestKind string

const (
	RequestKindGenerate RequestKind = "generate"
	RequestKindButton   RequestKind = "button"
)

// Request is the closed sum of actions a job can carry: generate a new image
// from a prompt, or apply a button action to a previously generated image.
// The kind decides how a retry is re-submitted and how dispatch is built.
type Request interface {
	Kind() RequestKind
}

type GenerateRequest struct {
	Prompt      string  `json:"prompt"`
	Style       string  `json:"style,omitempty"`
	Quality     string  `json:"quality,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

func (GenerateRequest) Kind() RequestKind { return RequestKindGenerate }

type ButtonRequest struct {
	Label     string `json:"label"`
	MessageID string `json:"messageId"`
}

func (ButtonRequest) Kind() RequestKind { return RequestKindButton }

type requestEnvelope struct {
	Kind RequestKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeRequest serializes a request as a kind-tagged JSON envelope for storage.
func EncodeRequest(r Request) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(requestEnvelope{Kind: r.Kind(), Data: data})
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(b []byte) (Request, error) {
	var env requestEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case RequestKindGenerate:
		var r GenerateRequest
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case RequestKindButton:
		var r ButtonRequest
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRequest, env.Kind)
	}
}
