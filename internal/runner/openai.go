package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/medbench/engine/internal/domain"
)

// Integration setting keys shared by the chat-style runners.
const (
	settingEndpoint   = "ENDPOINT"
	settingAPIKey     = "API_KEY"
	settingDeployment = "DEPLOYMENT"
)

// chatRunner speaks the OpenAI-compatible chat/completions API, covering
// both api.openai.com and Azure OpenAI deployments. Reasoning models use the
// same wire format without a temperature parameter.
type chatRunner struct {
	modelID    string
	endpoint   string
	apiKey     string
	deployment string
	reasoning  bool
	inv        *invoker
}

func newChatRunner(model *domain.Model) (Runner, error) {
	return newOpenAIRunner(model, false)
}

func newReasoningRunner(model *domain.Model) (Runner, error) {
	return newOpenAIRunner(model, true)
}

func newOpenAIRunner(model *domain.Model, reasoning bool) (Runner, error) {
	endpoint, err := setting(model, settingEndpoint)
	if err != nil {
		return nil, err
	}
	apiKey, err := setting(model, settingAPIKey)
	if err != nil {
		return nil, err
	}
	deployment, err := setting(model, settingDeployment)
	if err != nil {
		return nil, err
	}
	return &chatRunner{
		modelID:    model.ID,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		apiKey:     apiKey,
		deployment: deployment,
		reasoning:  reasoning,
		inv:        newInvoker(model.IntegrationType, model.ID),
	}, nil
}

func (r *chatRunner) ModelID() string { return r.modelID }

func (r *chatRunner) GenerateOutput(ctx context.Context, req Request) (string, error) {
	payload := map[string]any{
		"model":    r.deployment,
		"messages": buildChatMessages(req),
	}
	if !r.reasoning {
		payload["temperature"] = 0.0
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	respBody, err := r.inv.do(ctx, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			r.endpoint+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
		httpReq.Header.Set("api-key", r.apiKey)
		return httpReq, nil
	})
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", r.inv.wrap(ErrorTypeUnknown, "decoding chat response", 0, err)
	}
	if len(resp.Choices) == 0 {
		return "", r.inv.wrap(ErrorTypeUnknown, ErrEmptyResponse.Error(), 0, ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, c := range resp.Choices {
		sb.WriteString(c.Message.Content)
	}
	return sb.String(), nil
}

func (r *chatRunner) Close() error { return nil }
