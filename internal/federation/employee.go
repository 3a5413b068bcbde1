package federation

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"lineauth/internal/session"
	"lineauth/pkg/accounts"
)

// EmployeeCredentials extend Credentials with an optional store choice.
type EmployeeCredentials struct {
	Credentials
	StoreID string
}

// EmployeeResult is either a staff session or, when RequireStoreSelection is set,
// the list of stores the caller must pick from. No token is issued in the latter case.
type EmployeeResult struct {
	Token                 string
	User                  accounts.User
	EmployeeID            string
	StoreID               string
	Role                  string
	RequireStoreSelection bool
	StoreIDs              []string
}

// EmployeeLogin authenticates like TokenExchange and then gates on the employee record and store.
func (s *Service) EmployeeLogin(ctx context.Context, cr EmployeeCredentials) (res EmployeeResult, err error) {
	ctx, span := s.tracer.Start(ctx, "federation.EmployeeLogin")
	defer func() {
		endSpan(span, err)
		if err == nil && res.RequireStoreSelection {
			s.metrics.selection("employee")
			return
		}
		s.metrics.login("employee", err)
	}()

	id, err := s.authenticate(ctx, cr.Credentials, "")
	if err != nil {
		return EmployeeResult{}, err
	}
	u := id.user

	emp, err := s.staff.EmployeeByUser(ctx, u.TenantID, u.ID)
	switch {
	case errors.Is(err, accounts.ErrNotFound):
		return EmployeeResult{}, newError(CodeEmployeeRecordMissing, http.StatusNotFound, err, "no employee record for this account in tenant")
	case err != nil:
		return EmployeeResult{}, newError(CodeInternal, http.StatusInternalServerError, err, "employee lookup failed")
	}

	storeID := cr.StoreID
	switch {
	case storeID != "":
		if !slices.Contains(emp.StoreIDs, storeID) {
			return EmployeeResult{}, newError(CodeStoreNotAuthorized, http.StatusForbidden, nil, "employee is not assigned to store %s", storeID)
		}
	case len(emp.StoreIDs) == 1:
		storeID = emp.StoreIDs[0]
	case len(emp.StoreIDs) == 0:
		return EmployeeResult{}, newError(CodeStoreNotAuthorized, http.StatusForbidden, nil, "employee is not assigned to any store")
	default:
		s.log.Infow("store selection required", "tenant", u.TenantID, "user", u.ID, "stores", len(emp.StoreIDs))
		return EmployeeResult{User: u, EmployeeID: emp.ID, RequireStoreSelection: true, StoreIDs: slices.Clone(emp.StoreIDs)}, nil
	}

	store, err := s.staff.StoreByID(ctx, storeID)
	switch {
	case errors.Is(err, accounts.ErrNotFound):
		return EmployeeResult{}, newError(CodeStoreNotFound, http.StatusNotFound, err, "store %s not found", storeID)
	case err != nil:
		return EmployeeResult{}, newError(CodeInternal, http.StatusInternalServerError, err, "store lookup failed")
	}
	if store.TenantID != u.TenantID {
		return EmployeeResult{}, newError(CodeStoreNotFound, http.StatusNotFound, nil, "store %s not found", storeID)
	}

	if emp.Role != "" && emp.Role != u.Role {
		if u, err = s.syncClaims(ctx, u, u.TenantID, emp.Role); err != nil {
			return EmployeeResult{}, err
		}
	}
	tok, err := s.mint(u, session.Claims{TenantID: u.TenantID, Role: u.Role, EmployeeID: emp.ID, StoreID: storeID})
	if err != nil {
		return EmployeeResult{}, err
	}
	s.log.Infow("employee login", "tenant", u.TenantID, "user", u.ID, "employee", emp.ID, "store", storeID)
	return EmployeeResult{Token: tok, User: u, EmployeeID: emp.ID, StoreID: storeID, Role: u.Role}, nil
}
