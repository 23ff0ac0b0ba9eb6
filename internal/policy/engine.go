// Package policy screens consultation requests with an OPA policy before any
// upstream call is made.
package policy

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/open-policy-agent/opa/rego"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

// Input is the document the policy evaluates.
type Input struct {
	Op            domain.CallOp `json:"op"`
	Model         string        `json:"model"`
	MessageCount  int           `json:"message_count"`
	Roles         []string      `json:"roles"`
	LastRole      string        `json:"last_role"`
	LongestChars  int           `json:"longest_message_chars"`
	DocumentChars int           `json:"document_chars"`
	PerCallKey    bool          `json:"per_call_key"`
}

// NewInput summarizes a request for evaluation. Message content itself is not
// passed to the policy.
func NewInput(op domain.CallOp, model string, messages []domain.Message, documentText string, perCallKey bool) Input {
	in := Input{
		Op:            op,
		Model:         model,
		MessageCount:  len(messages),
		Roles:         make([]string, len(messages)),
		DocumentChars: utf8.RuneCountInString(documentText),
		PerCallKey:    perCallKey,
	}
	for i, m := range messages {
		in.Roles[i] = string(m.Role)
		in.LongestChars = max(in.LongestChars, utf8.RuneCountInString(m.Content))
	}
	if len(messages) > 0 {
		in.LastRole = string(messages[len(messages)-1].Role)
	}
	return in
}

// Decision is the policy outcome.
type Decision struct {
	Allow  bool
	Reason string
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.consult_policy.decision"),
		rego.Module("consult_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine reads the policy from path, or uses DefaultPolicy when path is
// empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate runs the policy. The rule is expected to produce an object
// {"allow": bool, "reason": string}; anything else denies.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allow: false, Reason: "policy produced no decision"}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{Allow: false, Reason: "unexpected policy result"}, nil
	}
	allow, _ := obj["allow"].(bool)
	reason, _ := obj["reason"].(string)
	return Decision{Allow: allow, Reason: reason}, nil
}

// Check evaluates the policy and converts a denial into a ValidationError.
func (e *Engine) Check(ctx context.Context, input Input) error {
	d, err := e.Evaluate(ctx, input)
	if err != nil {
		return err
	}
	if !d.Allow {
		return domain.NewValidationError(d.Reason)
	}
	return nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package consult_policy

valid_roles := {"system", "user", "assistant"}

max_messages := 100

max_message_chars := 20000

default decision = {"allow": true, "reason": ""}

decision = {"allow": false, "reason": reasons[0]} {
	reasons := sort(deny)
	count(reasons) > 0
}

deny["messages must not be empty"] {
	input.message_count == 0
}

deny["too many messages"] {
	input.message_count > max_messages
}

deny["invalid message role"] {
	count(invalid_roles) > 0
}

deny["message too long"] {
	input.longest_message_chars > max_message_chars
}

deny["last message must come from the user"] {
	input.message_count > 0
	input.last_role != "user"
}

invalid_roles[r] {
	r := input.roles[_]
	not valid_roles[r]
}
`
