package accounts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("account not found")
	// ErrEmailTaken is returned by Create when another account already owns the email.
	ErrEmailTaken = errors.New("email already in use")
	// ErrSubjectTaken is returned by Create when the LINE subject was linked concurrently.
	ErrSubjectTaken = errors.New("line subject already linked")
)

// User is the internal identity record. ID is the session subject.
type User struct {
	ID            string    `yaml:"id"`
	TenantID      string    `yaml:"tenant_id"`
	LineSubject   string    `yaml:"line_subject"`
	DisplayName   string    `yaml:"display_name"`
	Email         string    `yaml:"email"`
	EmailVerified bool      `yaml:"email_verified"`
	PhotoURL      string    `yaml:"photo_url"`
	Role          string    `yaml:"role"`
	CreatedAt     time.Time `yaml:"-"`
	UpdatedAt     time.Time `yaml:"-"`
}

// NewUser carries the fields for a first-login account.
type NewUser struct {
	LineSubject   string
	DisplayName   string
	PhotoURL      string
	Email         string
	EmailVerified bool
	TenantID      string
	Role          string
}

// ProfilePatch holds only the fields that changed; nil means untouched.
type ProfilePatch struct {
	DisplayName *string
	PhotoURL    *string
}

func (p ProfilePatch) Empty() bool { return p.DisplayName == nil && p.PhotoURL == nil }

// Employee links a user to one or more stores within a tenant.
type Employee struct {
	ID       string   `yaml:"id"`
	UserID   string   `yaml:"user_id"`
	TenantID string   `yaml:"tenant_id"`
	StoreIDs []string `yaml:"store_ids"`
	Role     string   `yaml:"role"`
}

type Store struct {
	ID       string `yaml:"id"`
	TenantID string `yaml:"tenant_id"`
	Name     string `yaml:"name"`
}

// Users is the user directory owned by the federation flow.
type Users interface {
	FindBySubject(ctx context.Context, lineSubject string) (User, error)
	Get(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, u NewUser) (User, error)
	UpdateProfile(ctx context.Context, id string, p ProfilePatch) error
	SetClaims(ctx context.Context, id, tenantID, role string) error
}

// Staff is read-only to the login flow; HR provisioning owns it.
type Staff interface {
	EmployeeByUser(ctx context.Context, tenantID, userID string) (Employee, error)
	StoreByID(ctx context.Context, id string) (Store, error)
}
