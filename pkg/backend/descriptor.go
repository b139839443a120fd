package backend

import (
	"fmt"
	"strings"

	"github.com/harun/oracle/pkg/agent"
	"github.com/harun/oracle/pkg/limiter"
)

// FailurePolicy decides what a failed backend call looks like to the caller.
type FailurePolicy string

const (
	// PolicyPropagate surfaces the failure as an *InvocationError.
	PolicyPropagate FailurePolicy = "propagate"
	// PolicySubstitute turns the failure into a normal result carrying the error text.
	PolicySubstitute FailurePolicy = "substitute"
)

// ParseFailurePolicy parses a policy name. The empty string means propagate.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyPropagate:
		return PolicyPropagate, nil
	case PolicySubstitute:
		return PolicySubstitute, nil
	default:
		return "", fmt.Errorf("%w: unknown failure policy %q", ErrInvalidDescriptor, s)
	}
}

// Descriptor configures one backend. It is copied into every session and
// never modified afterwards.
type Descriptor struct {
	Name          string        `json:"name" mapstructure:"name"`
	Provider      string        `json:"provider" mapstructure:"provider"`
	Model         string        `json:"model" mapstructure:"model"`
	FailurePolicy FailurePolicy `json:"failure_policy" mapstructure:"failure_policy"`
}

// Validate checks the descriptor fields.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	for _, r := range d.Name {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return fmt.Errorf("%w: name %q may only contain letters, digits, '-' and '_'", ErrInvalidDescriptor, d.Name)
		}
	}
	switch agent.NormalizeProvider(d.Provider) {
	case agent.ProviderAnthropic, agent.ProviderOpenAI, agent.ProviderGemini:
	default:
		return fmt.Errorf("%w: backend %s: unsupported provider %q", ErrInvalidDescriptor, d.Name, d.Provider)
	}
	if strings.TrimSpace(d.Model) == "" {
		return fmt.Errorf("%w: backend %s: model is required", ErrInvalidDescriptor, d.Name)
	}
	if _, err := ParseFailurePolicy(string(d.FailurePolicy)); err != nil {
		return fmt.Errorf("backend %s: %w", d.Name, err)
	}
	return nil
}

// ToolName is the name the aggregator calls this backend by.
func (d Descriptor) ToolName() string {
	return "ask_" + d.Name
}

func (d Descriptor) policy() FailurePolicy {
	p, err := ParseFailurePolicy(string(d.FailurePolicy))
	if err != nil {
		return PolicyPropagate
	}
	return p
}

// SessionContext is the per-session state every backend tool is bound to.
type SessionContext struct {
	ID       string
	Limiter  *limiter.Limiter
	Backends []Descriptor
}
