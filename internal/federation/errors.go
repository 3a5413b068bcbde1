package federation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"lineauth/internal/line"
)

// Code names one failure kind of the login pipeline.
type Code string

const (
	CodeInvalidRequest          Code = "InvalidRequest"
	CodeTenantUnresolved        Code = "TenantUnresolved"
	CodeConfigurationIncomplete Code = "ConfigurationIncomplete"
	CodeTokenExchangeFailed     Code = "TokenExchangeFailed"
	CodeTokenExpired            Code = "TokenExpired"
	CodeSignatureInvalid        Code = "SignatureInvalid"
	CodeIssuerMismatch          Code = "IssuerMismatch"
	CodeAudienceMismatch        Code = "AudienceMismatch"
	CodeClaimValidationFailed   Code = "ClaimValidationFailed"
	CodeMalformedToken          Code = "MalformedToken"
	CodeSubjectMissing          Code = "SubjectMissing"
	CodeAccessTokenInvalid      Code = "AccessTokenInvalid"
	CodeEmailAlreadyLinked      Code = "EmailAlreadyLinked"
	CodeAccountCreationFailed   Code = "AccountCreationFailed"
	CodeTenantMismatch          Code = "TenantMismatch"
	CodeEmployeeRecordMissing   Code = "EmployeeRecordMissing"
	CodeStoreNotAuthorized      Code = "StoreNotAuthorized"
	CodeStoreNotFound           Code = "StoreNotFound"
	CodeInternal                Code = "Internal"
)

// Error is a pipeline failure carrying the HTTP status it maps to.
type Error struct {
	Code    Code
	Message string
	Status  int
	// Retryable marks failures the client may resolve by simply repeating the request.
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, status int, err error, format string, args ...any) *Error {
	return &Error{Code: code, Status: status, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsError extracts the pipeline error from err; anything else becomes Internal/500.
func AsError(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal error", Err: err}
}

var verifyCodes = []struct {
	sentinel error
	code     Code
}{
	{line.ErrMalformedToken, CodeMalformedToken},
	{line.ErrSignatureInvalid, CodeSignatureInvalid},
	{line.ErrIssuerMismatch, CodeIssuerMismatch},
	{line.ErrAudienceMismatch, CodeAudienceMismatch},
	{line.ErrTokenExpired, CodeTokenExpired},
	{line.ErrSubjectMissing, CodeSubjectMissing},
	{line.ErrClaimValidation, CodeClaimValidationFailed},
}

func verifyError(err error) *Error {
	for _, vc := range verifyCodes {
		if errors.Is(err, vc.sentinel) {
			return newError(vc.code, http.StatusUnauthorized, err, "%s", vc.sentinel.Error())
		}
	}
	return newError(CodeClaimValidationFailed, http.StatusUnauthorized, err, "identity token rejected")
}

func exchangeError(err error) *Error {
	var pe *line.ProviderError
	if errors.As(err, &pe) {
		return newError(CodeTokenExchangeFailed, http.StatusUnauthorized, err, "%s", pe.Error())
	}
	return newError(CodeTokenExchangeFailed, http.StatusBadGateway, err, "%s", err.Error())
}

func introspectError(err error) *Error {
	return newError(CodeAccessTokenInvalid, http.StatusUnauthorized, err, "%s", strings.TrimPrefix(err.Error(), line.ErrAccessTokenInvalid.Error()+": "))
}
