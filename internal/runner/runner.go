// Package runner invokes external model integrations to generate outputs for
// clinical data. Integrations are registered by type in a Registry; each
// runner shares a rate-limited, retrying HTTP invocation path.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/medbench/engine/internal/domain"
)

// Request carries everything a runner needs for one generation call. When
// OutputInstructions is set it is appended to the base prompt, separated by
// a blank line. PriorOutputs holds already-resolved model outputs the model
// is asked to judge (one for validation styles, two for Arena).
type Request struct {
	BasePrompt         string
	OutputInstructions string
	Inputs             []domain.DataContent
	PriorOutputs       []domain.ModelOutput
}

// Prompt returns the combined system prompt for the call.
func (r Request) Prompt() string {
	if r.OutputInstructions == "" {
		return r.BasePrompt
	}
	return r.BasePrompt + "\n\n" + r.OutputInstructions
}

// Runner is the capability to generate output from one registered model.
// Implementations are safe for sequential reuse within a processing run and
// released with Close when the run ends.
type Runner interface {
	// ModelID returns the id of the model this runner speaks for.
	ModelID() string

	// GenerateOutput invokes the integration and returns the raw text
	// response. Failures are *Error values classified for retryability.
	GenerateOutput(ctx context.Context, req Request) (string, error)

	// Close releases any resources held by the runner.
	Close() error
}

// Factory builds a runner for a model whose integration settings it reads.
type Factory func(model *domain.Model) (Runner, error)

// Registry maps integration types to runner factories. Registration replaces
// any previous factory for the type, so deployments can override defaults.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry pre-populated with the built-in
// integrations: OpenAI-compatible chat ("openai", "openai-reasoning") and
// Azure serverless chat endpoints ("deepseek", "phi4", "cxrreportgen", plus
// the legacy "azure-serverless" and "functionapp" identifiers carried by
// older model configurations).
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(IntegrationOpenAI, newChatRunner)
	r.Register(IntegrationOpenAIReasoning, newReasoningRunner)
	r.Register(IntegrationDeepSeek, newServerlessRunner)
	r.Register(IntegrationPhi4, newServerlessRunner)
	r.Register(IntegrationCXRReportGen, newServerlessRunner)
	r.Register(IntegrationAzureServerless, newServerlessRunner)
	r.Register(IntegrationFunctionApp, newServerlessRunner)
	return r
}

// Built-in integration type identifiers matching model configuration.
const (
	IntegrationOpenAI          = "openai"
	IntegrationOpenAIReasoning = "openai-reasoning"
	IntegrationDeepSeek        = "deepseek"
	IntegrationPhi4            = "phi4"
	IntegrationCXRReportGen    = "cxrreportgen"

	// Legacy identifiers still present in migrated model records. Both map
	// to the serverless chat runner.
	IntegrationAzureServerless = "azure-serverless"
	IntegrationFunctionApp     = "functionapp"
)

// Register binds a factory to an integration type.
func (r *Registry) Register(integrationType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[integrationType] = f
}

// Supports reports whether a factory is registered for the type.
func (r *Registry) Supports(integrationType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[integrationType]
	return ok
}

// Create builds a runner for the model's declared integration type.
func (r *Registry) Create(model *domain.Model) (Runner, error) {
	r.mu.RLock()
	f, ok := r.factories[model.IntegrationType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntegration, model.IntegrationType)
	}
	return f(model)
}

// setting reads a required key from the model's integration settings.
func setting(model *domain.Model, key string) (string, error) {
	v := strings.TrimSpace(model.Integration[key])
	if v == "" {
		return "", fmt.Errorf("%w: %s for model %s", ErrMissingSetting, key, model.ID)
	}
	return v, nil
}
