package tenants

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("tenant not found")

type Provider interface {
	// Exact-match lookups; ErrNotFound when nothing matches.
	TenantByID(ctx context.Context, id string) (Tenant, error)
	TenantByCode(ctx context.Context, code string) (Tenant, error)
	TenantByName(ctx context.Context, name string) (Tenant, error)
	TenantBySubdomain(ctx context.Context, subdomain string) (Tenant, error)
	// SystemDefaults returns the zero value (and no error) when nothing is provisioned.
	SystemDefaults(ctx context.Context) (SystemDefaults, error)
}
