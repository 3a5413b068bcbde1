package federation

import (
	"context"
	"errors"
	"net/http"

	"lineauth/internal/line"
	"lineauth/pkg/accounts"
)

const (
	RoleCustomer = "customer"

	placeholderPrefix = "LINE User "
)

// placeholderName is used when LINE supplies no display name.
func placeholderName(subject string) string {
	if len(subject) > 8 {
		subject = subject[:8]
	}
	return placeholderPrefix + subject
}

// link finds the account bound to the verified subject or creates one for tenantID.
// Existing accounts get their display name and photo refreshed from the claims.
func (s *Service) link(ctx context.Context, tenantID string, c line.IDClaims) (accounts.User, bool, error) {
	u, err := s.users.FindBySubject(ctx, c.Subject)
	switch {
	case err == nil:
		return s.refreshProfile(ctx, u, c)
	case !errors.Is(err, accounts.ErrNotFound):
		return accounts.User{}, false, newError(CodeInternal, http.StatusInternalServerError, err, "account lookup failed")
	}

	nu := accounts.NewUser{
		LineSubject: c.Subject,
		DisplayName: c.Name,
		PhotoURL:    c.Picture,
		TenantID:    tenantID,
		Role:        RoleCustomer,
	}
	if nu.DisplayName == "" {
		nu.DisplayName = placeholderName(c.Subject)
	}
	if c.Email != "" {
		// LINE only releases emails the user consented to share; ownership is not proven to us.
		nu.Email = c.Email
		nu.EmailVerified = false
	}
	u, err = s.users.Create(ctx, nu)
	switch {
	case err == nil:
		s.log.Infow("account created", "tenant", tenantID, "subject", c.Subject, "user", u.ID)
		return u, true, nil
	case errors.Is(err, accounts.ErrEmailTaken):
		return accounts.User{}, false, newError(CodeEmailAlreadyLinked, http.StatusConflict, err, "%s", c.Email)
	case errors.Is(err, accounts.ErrSubjectTaken):
		// Lost a race with a concurrent first login for the same subject.
		fe := newError(CodeAccountCreationFailed, http.StatusInternalServerError, err, "account is being created by another request, retry")
		fe.Retryable = true
		return accounts.User{}, false, fe
	default:
		return accounts.User{}, false, newError(CodeAccountCreationFailed, http.StatusInternalServerError, err, "could not create account")
	}
}

func (s *Service) refreshProfile(ctx context.Context, u accounts.User, c line.IDClaims) (accounts.User, bool, error) {
	var p accounts.ProfilePatch
	if c.Name != "" && c.Name != u.DisplayName {
		p.DisplayName = &c.Name
	}
	if c.Picture != "" && c.Picture != u.PhotoURL {
		p.PhotoURL = &c.Picture
	}
	if p.Empty() {
		return u, false, nil
	}
	if err := s.users.UpdateProfile(ctx, u.ID, p); err != nil {
		return accounts.User{}, false, newError(CodeInternal, http.StatusInternalServerError, err, "profile update failed")
	}
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.PhotoURL != nil {
		u.PhotoURL = *p.PhotoURL
	}
	return u, false, nil
}
