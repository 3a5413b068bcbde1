// Package policy decides what happens when a returning account logs in under a tenant other than
// the one it is stored against.
package policy

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/rego"
)

type Action string

const (
	// Overwrite moves the account to the tenant resolved for this login.
	Overwrite Action = "overwrite"
	// Keep leaves the stored tenant in place and issues the session for it.
	Keep Action = "keep"
	// Reject fails the login with TenantMismatch.
	Reject Action = "reject"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case Overwrite, Keep, Reject:
		return a, nil
	case "":
		return Overwrite, nil
	default:
		return "", fmt.Errorf("unknown tenant move action %q", s)
	}
}

// MoveInput is the decision context handed to a TenantMove policy.
type MoveInput struct {
	StoredTenant   string `json:"stored_tenant"`
	ResolvedTenant string `json:"resolved_tenant"`
	Role           string `json:"role"`
	Subject        string `json:"subject"`
}

func (in MoveInput) asMap() map[string]any {
	return map[string]any{
		"stored_tenant":   in.StoredTenant,
		"resolved_tenant": in.ResolvedTenant,
		"role":            in.Role,
		"subject":         in.Subject,
	}
}

type TenantMove interface {
	Decide(ctx context.Context, in MoveInput) (Action, error)
}

// Static always answers with the same action.
type Static Action

func (s Static) Decide(context.Context, MoveInput) (Action, error) { return Action(s), nil }

const moveQuery = "data.federation.tenant_move"

// Rego evaluates a prepared module exposing data.federation.tenant_move.
// An undefined result falls back to the configured static action.
type Rego struct {
	query    rego.PreparedEvalQuery
	fallback Action
}

func NewRego(ctx context.Context, module string, fallback Action) (*Rego, error) {
	pq, err := rego.New(
		rego.Query(moveQuery),
		rego.Module("tenant_move.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile tenant move policy: %w", err)
	}
	return &Rego{query: pq, fallback: fallback}, nil
}

func LoadRegoFile(ctx context.Context, path string, fallback Action) (*Rego, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant move policy: %w", err)
	}
	return NewRego(ctx, string(b), fallback)
}

func (r *Rego) Decide(ctx context.Context, in MoveInput) (Action, error) {
	rs, err := r.query.Eval(ctx, rego.EvalInput(in.asMap()))
	if err != nil {
		return "", fmt.Errorf("evaluate tenant move policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return r.fallback, nil
	}
	s, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("tenant move policy returned %T, want string", rs[0].Expressions[0].Value)
	}
	return ParseAction(s)
}

// New builds the configured policy: a Rego module when regoFile is set, otherwise the static mode.
func New(ctx context.Context, mode, regoFile string) (TenantMove, error) {
	a, err := ParseAction(mode)
	if err != nil {
		return nil, err
	}
	if regoFile != "" {
		return LoadRegoFile(ctx, regoFile, a)
	}
	return Static(a), nil
}
