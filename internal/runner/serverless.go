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

// serverlessRunner speaks the Azure serverless endpoint dialect of
// chat/completions used by the DeepSeek, Phi-4, and CXR report generation
// deployments. Authentication is a bare key in the Authorization header and
// the path is rooted at /v1.
type serverlessRunner struct {
	modelID  string
	endpoint string
	apiKey   string
	inv      *invoker
}

func newServerlessRunner(model *domain.Model) (Runner, error) {
	endpoint, err := setting(model, settingEndpoint)
	if err != nil {
		return nil, err
	}
	apiKey, err := setting(model, settingAPIKey)
	if err != nil {
		return nil, err
	}
	return &serverlessRunner{
		modelID:  model.ID,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		inv:      newInvoker(model.IntegrationType, model.ID),
	}, nil
}

func (r *serverlessRunner) ModelID() string { return r.modelID }

func (r *serverlessRunner) GenerateOutput(ctx context.Context, req Request) (string, error) {
	payload := map[string]any{
		"messages":   buildChatMessages(req),
		"max_tokens": 4096,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal serverless request: %w", err)
	}

	respBody, err := r.inv.do(ctx, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			r.endpoint+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", r.apiKey)
		return httpReq, nil
	})
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", r.inv.wrap(ErrorTypeUnknown, "decoding serverless response", 0, err)
	}
	if len(resp.Choices) == 0 {
		return "", r.inv.wrap(ErrorTypeUnknown, ErrEmptyResponse.Error(), 0, ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func (r *serverlessRunner) Close() error { return nil }
