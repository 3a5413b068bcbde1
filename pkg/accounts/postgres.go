package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	pgUniqueViolation = "23505"

	constraintEmail   = "users_email_lower_key"
	constraintSubject = "users_line_subject_key"
)

// Postgres implements Users and Staff.
type Postgres struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

func NewPostgres(dbPool *pgxpool.Pool, log *zap.SugaredLogger) *Postgres {
	return &Postgres{dbPool: dbPool, log: log}
}

// EnsureSchema creates users, employees and stores. Requires tenants.EnsureSchema first.
// users.tenant_id is not a foreign key: the resolver may hand out a tenant id (a UUID hint or
// the system default) that has no tenants row, and the account must still be created.
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
  id uuid PRIMARY KEY,
  tenant_id uuid,
  line_subject text,
  display_name text NOT NULL,
  email text,
  email_verified boolean NOT NULL DEFAULT false,
  photo_url text,
  role text,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
ALTER TABLE users DROP CONSTRAINT IF EXISTS users_tenant_id_fkey;
CREATE UNIQUE INDEX IF NOT EXISTS `+constraintSubject+` ON users(line_subject) WHERE line_subject IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS `+constraintEmail+` ON users(lower(email)) WHERE email IS NOT NULL;
CREATE TABLE IF NOT EXISTS stores (
  id text PRIMARY KEY,
  tenant_id uuid NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
  name text
);
CREATE TABLE IF NOT EXISTS employees (
  id text PRIMARY KEY,
  tenant_id uuid NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
  user_id uuid NOT NULL REFERENCES users(id),
  store_ids text[] NOT NULL DEFAULT '{}',
  role text NOT NULL DEFAULT 'staff',
  UNIQUE (tenant_id, user_id)
);
`)
	return err
}

const userColumns = `id::text,COALESCE(tenant_id::text,''),COALESCE(line_subject,''),display_name,COALESCE(email,''),
email_verified,COALESCE(photo_url,''),COALESCE(role,''),created_at,updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TenantID, &u.LineSubject, &u.DisplayName, &u.Email,
		&u.EmailVerified, &u.PhotoURL, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (p *Postgres) FindBySubject(ctx context.Context, sub string) (User, error) {
	return scanUser(p.dbPool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE line_subject=$1`, sub))
}

func (p *Postgres) Get(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	return scanUser(p.dbPool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1::uuid`, id))
}

func (p *Postgres) Create(ctx context.Context, nu NewUser) (User, error) {
	row := p.dbPool.QueryRow(ctx, `INSERT INTO users(id,tenant_id,line_subject,display_name,email,email_verified,photo_url,role)
	  VALUES ($1,NULLIF($2,'')::uuid,$3,$4,NULLIF($5,''),$6,NULLIF($7,''),$8)
	  RETURNING `+userColumns,
		uuid.New(), nu.TenantID, nu.LineSubject, nu.DisplayName, nu.Email, nu.EmailVerified, nu.PhotoURL, nu.Role)
	u, err := scanUser(row)
	if err == nil {
		return u, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case constraintEmail:
			return User{}, ErrEmailTaken
		case constraintSubject:
			return User{}, ErrSubjectTaken
		}
	}
	return User{}, fmt.Errorf("insert user: %w", err)
}

func (p *Postgres) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) error {
	if patch.Empty() {
		return nil
	}
	tag, err := p.dbPool.Exec(ctx, `UPDATE users SET display_name=COALESCE($1,display_name), photo_url=COALESCE($2,photo_url),
	  updated_at=NOW() WHERE id=$3::uuid`, patch.DisplayName, patch.PhotoURL, id)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetClaims(ctx context.Context, id, tenantID, role string) error {
	tag, err := p.dbPool.Exec(ctx, `UPDATE users SET tenant_id=NULLIF($1,'')::uuid, role=$2, updated_at=NOW() WHERE id=$3::uuid`,
		tenantID, role, id)
	if err != nil {
		return fmt.Errorf("set claims: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EmployeeByUser(ctx context.Context, tenantID, userID string) (Employee, error) {
	var e Employee
	err := p.dbPool.QueryRow(ctx, `SELECT id,tenant_id::text,user_id::text,store_ids,role FROM employees
	  WHERE tenant_id=$1::uuid AND user_id=$2::uuid`, tenantID, userID).
		Scan(&e.ID, &e.TenantID, &e.UserID, &e.StoreIDs, &e.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrNotFound
	}
	if err != nil {
		return Employee{}, fmt.Errorf("employee lookup: %w", err)
	}
	return e, nil
}

func (p *Postgres) StoreByID(ctx context.Context, id string) (Store, error) {
	var s Store
	err := p.dbPool.QueryRow(ctx, `SELECT id,tenant_id::text,COALESCE(name,'') FROM stores WHERE id=$1`, id).
		Scan(&s.ID, &s.TenantID, &s.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Store{}, ErrNotFound
	}
	if err != nil {
		return Store{}, fmt.Errorf("store lookup: %w", err)
	}
	return s, nil
}

// SeedFromFile upserts stores and employees from the dev seed. Users are only seeded when they carry an id.
func SeedFromFile(ctx context.Context, dbPool *pgxpool.Pool, path string) error {
	seed, err := LoadSeedFile(path)
	if err != nil {
		return err
	}
	for _, u := range seed.Users {
		if u.ID == "" {
			continue
		}
		if _, err := dbPool.Exec(ctx, `INSERT INTO users(id,tenant_id,line_subject,display_name,email,role)
		  VALUES ($1::uuid,NULLIF($2,'')::uuid,NULLIF($3,''),$4,NULLIF($5,''),NULLIF($6,'')) ON CONFLICT (id) DO NOTHING`,
			u.ID, u.TenantID, u.LineSubject, u.DisplayName, u.Email, u.Role); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for _, s := range seed.Stores {
		if _, err := dbPool.Exec(ctx, `INSERT INTO stores(id,tenant_id,name) VALUES ($1,$2::uuid,$3)
		  ON CONFLICT (id) DO UPDATE SET tenant_id=EXCLUDED.tenant_id,name=EXCLUDED.name`, s.ID, s.TenantID, s.Name); err != nil {
			return fmt.Errorf("seed store %s: %w", s.ID, err)
		}
	}
	for _, e := range seed.Employees {
		if _, err := dbPool.Exec(ctx, `INSERT INTO employees(id,tenant_id,user_id,store_ids,role) VALUES ($1,$2::uuid,$3::uuid,$4,$5)
		  ON CONFLICT (id) DO UPDATE SET store_ids=EXCLUDED.store_ids,role=EXCLUDED.role`,
			e.ID, e.TenantID, e.UserID, e.StoreIDs, e.Role); err != nil {
			return fmt.Errorf("seed employee %s: %w", e.ID, err)
		}
	}
	return nil
}
