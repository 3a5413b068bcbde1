// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgProvider implements Provider backed by PostgreSQL.
type pgProvider struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresProvider constructs a PostgreSQL-backed tenant directory.
func NewPostgresProvider(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Provider {
	return &pgProvider{dbPool: dbPool, log: log}
}

// EnsureSchema creates the tenant and system config tables. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id uuid PRIMARY KEY,
  code text UNIQUE,
  name text UNIQUE,
  subdomain text UNIQUE,
  line_channel_id text,
  line_channel_secret text,
  line_redirect_uri text,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS system_config (
  id int PRIMARY KEY DEFAULT 1 CHECK (id = 1),
  default_tenant_id uuid,
  line_channel_id text,
  line_channel_secret text,
  line_redirect_uri text,
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
ALTER TABLE tenants ADD COLUMN IF NOT EXISTS subdomain text;
ALTER TABLE tenants ADD COLUMN IF NOT EXISTS line_redirect_uri text;
`)
	return err
}

// SeedFromFile upserts the tenants and system defaults found in a YAML seed.
func SeedFromFile(ctx context.Context, dbPool *pgxpool.Pool, path string) error {
	seed, err := LoadSeedFile(path)
	if err != nil {
		return err
	}
	for _, t := range seed.Tenants {
		if _, err := dbPool.Exec(ctx, `INSERT INTO tenants(id,code,name,subdomain,line_channel_id,line_channel_secret,line_redirect_uri)
		  VALUES ($1,NULLIF($2,''),NULLIF($3,''),NULLIF($4,''),NULLIF($5,''),NULLIF($6,''),NULLIF($7,''))
		  ON CONFLICT (id) DO UPDATE SET code=EXCLUDED.code,name=EXCLUDED.name,subdomain=EXCLUDED.subdomain,
		    line_channel_id=EXCLUDED.line_channel_id,line_channel_secret=EXCLUDED.line_channel_secret,
		    line_redirect_uri=EXCLUDED.line_redirect_uri,updated_at=NOW()`,
			t.ID, t.Code, t.Name, t.Subdomain, t.LineChannelID, t.LineChannelSecret, t.LineRedirectURI); err != nil {
			return fmt.Errorf("seed tenant %s: %w", t.ID, err)
		}
	}
	s := seed.System
	if s == (SystemDefaults{}) {
		return nil
	}
	_, err = dbPool.Exec(ctx, `INSERT INTO system_config(id,default_tenant_id,line_channel_id,line_channel_secret,line_redirect_uri)
	  VALUES (1,NULLIF($1,'')::uuid,NULLIF($2,''),NULLIF($3,''),NULLIF($4,''))
	  ON CONFLICT (id) DO UPDATE SET default_tenant_id=EXCLUDED.default_tenant_id,line_channel_id=EXCLUDED.line_channel_id,
	    line_channel_secret=EXCLUDED.line_channel_secret,line_redirect_uri=EXCLUDED.line_redirect_uri,updated_at=NOW()`,
		s.DefaultTenantID, s.LineChannelID, s.LineChannelSecret, s.LineRedirectURI)
	return err
}

const tenantColumns = `id::text,COALESCE(code,''),COALESCE(name,''),COALESCE(subdomain,''),
COALESCE(line_channel_id,''),COALESCE(line_channel_secret,''),COALESCE(line_redirect_uri,'')`

func (p *pgProvider) TenantByID(ctx context.Context, id string) (Tenant, error) {
	return p.one(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id=$1::uuid`, id)
}

func (p *pgProvider) TenantByCode(ctx context.Context, code string) (Tenant, error) {
	return p.one(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE code=$1`, code)
}

func (p *pgProvider) TenantByName(ctx context.Context, name string) (Tenant, error) {
	return p.one(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE name=$1`, name)
}

func (p *pgProvider) TenantBySubdomain(ctx context.Context, sub string) (Tenant, error) {
	return p.one(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE subdomain=$1`, sub)
}

// SystemDefaults reads the system_config singleton row.
func (p *pgProvider) SystemDefaults(ctx context.Context) (SystemDefaults, error) {
	var s SystemDefaults
	err := p.dbPool.QueryRow(ctx, `SELECT COALESCE(default_tenant_id::text,''),COALESCE(line_channel_id,''),
	  COALESCE(line_channel_secret,''),COALESCE(line_redirect_uri,'') FROM system_config WHERE id=1`).
		Scan(&s.DefaultTenantID, &s.LineChannelID, &s.LineChannelSecret, &s.LineRedirectURI)
	if errors.Is(err, pgx.ErrNoRows) {
		return SystemDefaults{}, nil
	}
	return s, err
}

func (p *pgProvider) one(ctx context.Context, query, arg string) (Tenant, error) {
	var t Tenant
	err := p.dbPool.QueryRow(ctx, query, arg).Scan(&t.ID, &t.Code, &t.Name, &t.Subdomain,
		&t.LineChannelID, &t.LineChannelSecret, &t.LineRedirectURI)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("tenant lookup: %w", err)
	}
	return t, nil
}
