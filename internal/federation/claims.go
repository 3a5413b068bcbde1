package federation

import (
	"context"
	"net/http"

	"lineauth/internal/policy"
	"lineauth/pkg/accounts"
)

// syncClaims reconciles the stored tenant and role with this login. role overrides the stored
// role when non-empty. A stored role is scoped to its tenant, so moving the account resets it to
// customer. Nothing is written when neither value changes.
func (s *Service) syncClaims(ctx context.Context, u accounts.User, resolvedTenant, role string) (accounts.User, error) {
	tenant := u.TenantID
	switch {
	case tenant == "":
		tenant = resolvedTenant
	case tenant != resolvedTenant:
		act, err := s.moves.Decide(ctx, policy.MoveInput{
			StoredTenant:   u.TenantID,
			ResolvedTenant: resolvedTenant,
			Role:           u.Role,
			Subject:        u.LineSubject,
		})
		if err != nil {
			return accounts.User{}, newError(CodeInternal, http.StatusInternalServerError, err, "tenant move policy failed")
		}
		switch act {
		case policy.Overwrite:
			s.log.Warnw("account moved to another tenant", "user", u.ID, "subject", u.LineSubject, "from", u.TenantID, "to", resolvedTenant)
			tenant = resolvedTenant
		case policy.Keep:
			s.log.Infow("login under foreign tenant, keeping home tenant", "user", u.ID, "tenant", u.TenantID, "resolved", resolvedTenant)
		default:
			return accounts.User{}, newError(CodeTenantMismatch, http.StatusForbidden, nil, "account belongs to another tenant")
		}
	}

	newRole := u.Role
	switch {
	case role != "":
		newRole = role
	case tenant != u.TenantID, newRole == "":
		newRole = RoleCustomer
	}

	if tenant == u.TenantID && newRole == u.Role {
		return u, nil
	}
	if err := s.users.SetClaims(ctx, u.ID, tenant, newRole); err != nil {
		return accounts.User{}, newError(CodeInternal, http.StatusInternalServerError, err, "claims update failed")
	}
	u.TenantID, u.Role = tenant, newRole
	return u, nil
}
