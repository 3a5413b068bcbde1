//go:build integration

package tenants

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"lineauth/internal/testinfra"
)

const pgSeed = `
system:
  default_tenant_id: 11111111-1111-4111-8111-111111111111
  line_channel_id: sys-ch
  line_channel_secret: sys-secret
  line_redirect_uri: https://auth.example.com/cb
tenants:
  - id: 11111111-1111-4111-8111-111111111111
    code: acme
    name: Acme Diner
    subdomain: acme
    line_channel_id: acme-ch
    line_channel_secret: acme-secret
  - id: 22222222-2222-4222-8222-222222222222
    code: globex
    name: Globex Grill
`

func TestPostgresProvider(t *testing.T) {
	ctx := context.Background()
	pool := testinfra.NewPostgres(t)
	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
	p := NewPostgresProvider(pool, zap.NewNop().Sugar())

	sys, err := p.SystemDefaults(ctx)
	if err != nil || sys != (SystemDefaults{}) {
		t.Fatalf("SystemDefaults() before seed = %+v, %v", sys, err)
	}

	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(pgSeed), 0o600); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := SeedFromFile(ctx, pool, path); err != nil {
			t.Fatalf("SeedFromFile() = %v", err)
		}
	}

	tests := []struct {
		name   string
		lookup func(context.Context, string) (Tenant, error)
		key    string
		wantID string
	}{
		{"by id", p.TenantByID, "22222222-2222-4222-8222-222222222222", "22222222-2222-4222-8222-222222222222"},
		{"by code", p.TenantByCode, "acme", "11111111-1111-4111-8111-111111111111"},
		{"by name", p.TenantByName, "Globex Grill", "22222222-2222-4222-8222-222222222222"},
		{"by subdomain", p.TenantBySubdomain, "acme", "11111111-1111-4111-8111-111111111111"},
		{"unknown code", p.TenantByCode, "nope", ""},
		{"unknown id", p.TenantByID, "33333333-3333-4333-8333-333333333333", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.lookup(ctx, tt.key)
			if tt.wantID == "" {
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("err = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil || got.ID != tt.wantID {
				t.Fatalf("got %+v, %v; want id %s", got, err, tt.wantID)
			}
		})
	}

	acme, _ := p.TenantByCode(ctx, "acme")
	if acme.LineChannelID != "acme-ch" || acme.LineChannelSecret != "acme-secret" || acme.LineRedirectURI != "" {
		t.Errorf("acme channel = %+v", acme)
	}
	sys, err = p.SystemDefaults(ctx)
	if err != nil || sys.LineChannelID != "sys-ch" || sys.DefaultTenantID != acme.ID {
		t.Errorf("SystemDefaults() = %+v, %v", sys, err)
	}
}
