package authzopa

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"torrens/internal/domain"
)

const testPolicy = `package torrens.authz

default allow = false

grants = {
	"u1": ["planner", "surveyor"],
	"u2": ["registrar"],
}

allow {
	grants[input.user_id][_] == input.roles[_]
}
`

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	provider, err := NewFromModule(context.Background(), testPolicy)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func TestProviderHasRole(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	decision, err := provider.HasRole(ctx, "u1", domain.RolePlanner)
	if err != nil || !decision.Allowed {
		t.Fatalf("expected planner grant, got %+v err=%v", decision, err)
	}

	decision, err = provider.HasRole(ctx, "u1", domain.RoleRegistrar)
	if err != nil || decision.Allowed {
		t.Fatalf("expected registrar denial, got %+v err=%v", decision, err)
	}
	if decision.Reason == "" {
		t.Fatal("denials should carry a reason")
	}

	decision, err = provider.HasRole(ctx, "stranger", domain.RolePlanner)
	if err != nil || decision.Allowed {
		t.Fatalf("expected unknown user denial, got %+v err=%v", decision, err)
	}
}

func TestProviderHasAnyRole(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	decision, err := provider.HasAnyRole(ctx, "u2", domain.RolePlanner, domain.RoleRegistrar)
	if err != nil || !decision.Allowed {
		t.Fatalf("expected any-role grant, got %+v err=%v", decision, err)
	}

	decision, err = provider.HasAnyRole(ctx, "u2", domain.RolePlanner, domain.RoleSurveyor)
	if err != nil || decision.Allowed {
		t.Fatalf("expected any-role denial, got %+v err=%v", decision, err)
	}
}

func TestProviderLoadsFromPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "authz.rego"), []byte(testPolicy), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}

	provider, err := NewFromPath(context.Background(), dir)
	if err != nil {
		t.Fatalf("new provider from path: %v", err)
	}
	decision, err := provider.HasRole(context.Background(), "u1", domain.RoleSurveyor)
	if err != nil || !decision.Allowed {
		t.Fatalf("expected surveyor grant, got %+v err=%v", decision, err)
	}
}

func TestProviderRejectsHttpSend(t *testing.T) {
	rejectBuiltin(t, `http.send({"method": "get", "url": "https://example.com"})`)
}

func TestProviderRejectsTimeBuiltin(t *testing.T) {
	rejectBuiltin(t, "time.now_ns()")
}

func rejectBuiltin(t *testing.T, expr string) {
	t.Helper()
	module := `package torrens.authz

default allow = false

allow {
	` + expr + `
}
`
	if _, err := NewFromModule(context.Background(), module); err == nil {
		t.Fatalf("expected builtin to be rejected: %s", expr)
	}
}

func TestProviderRejectsNonBooleanVerdict(t *testing.T) {
	module := `package torrens.authz

allow = "yes"
`
	provider, err := NewFromModule(context.Background(), module)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.HasRole(context.Background(), "u1", domain.RolePlanner); err == nil {
		t.Fatal("expected type error for non-boolean verdict")
	}
}
