// Package authzopa resolves roles through an Open Policy Agent query.
// The policy decides role membership; the provider only shapes the
// input and reads back a boolean verdict.
package authzopa

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"torrens/internal/domain"
	"torrens/internal/usecase"
)

const defaultQuery = "data.torrens.authz.allow"

// Provider evaluates a prepared rego query per role check. Policy input
// is {"user_id": ..., "roles": [...]}; the query must yield a boolean,
// true when the user may act under any of the requested roles.
type Provider struct {
	query rego.PreparedEvalQuery
}

var _ usecase.AuthorizationProvider = (*Provider)(nil)

// NewFromModule compiles an inline rego module. Use it when the policy
// ships through configuration rather than a bundle directory.
func NewFromModule(ctx context.Context, module string) (*Provider, error) {
	return prepare(ctx, rego.Module("authz.rego", module))
}

// NewFromPath loads policy and data documents from a bundle path.
func NewFromPath(ctx context.Context, path string) (*Provider, error) {
	return prepare(ctx, rego.Load([]string{path}, nil))
}

func prepare(ctx context.Context, source func(*rego.Rego)) (*Provider, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	prepared, err := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		source,
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare role policy: %w", err)
	}
	return &Provider{query: prepared}, nil
}

func (p *Provider) HasRole(ctx context.Context, userID string, role domain.Role) (usecase.Decision, error) {
	return p.eval(ctx, userID, []domain.Role{role})
}

func (p *Provider) HasAnyRole(ctx context.Context, userID string, roles ...domain.Role) (usecase.Decision, error) {
	return p.eval(ctx, userID, roles)
}

func (p *Provider) eval(ctx context.Context, userID string, roles []domain.Role) (usecase.Decision, error) {
	if p == nil {
		return usecase.Decision{}, errors.New("role policy is nil")
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	input := map[string]any{
		"user_id": userID,
		"roles":   names,
	}
	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return usecase.Decision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return usecase.Decision{Reason: "policy returned no result"}, nil
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return usecase.Decision{}, fmt.Errorf("policy result is %T, want bool", results[0].Expressions[0].Value)
	}
	if !allowed {
		return usecase.Decision{Reason: "denied by policy"}, nil
	}
	return usecase.Decision{Allowed: true}, nil
}
