package authapi

import "lineauth/pkg/openapi"

func describe() *openapi.Registry {
	ok := func(desc string) map[string]any { return map[string]any{"description": desc} }
	r := openapi.NewRegistry()
	r.Register(openapi.Operation{
		Method: "GET", Path: "/auth/line/login", Tags: []string{"line"},
		Summary:     "Start LINE login",
		Description: "Query: redirect_uri (required), state, tenant_hint. Redirects to LINE.",
		Responses:   map[string]any{"302": ok("redirect to LINE"), "400": ok("invalid redirect or tenant unresolved")},
	})
	r.Register(openapi.Operation{
		Method: "GET", Path: "/auth/line/callback", Tags: []string{"line"},
		Summary:   "LINE authorization callback",
		Responses: map[string]any{"302": ok("redirect to caller with tokens or error"), "400": ok("invalid state")},
	})
	r.Register(openapi.Operation{
		Method: "POST", Path: "/auth/line/token-exchange", Tags: []string{"line"},
		Summary: "Exchange LINE tokens for a session",
		RequestBody: openapi.JSONBody([]string{"lineAccessToken", "lineIdToken"}, map[string]string{
			"lineAccessToken": "string", "lineIdToken": "string", "tenantHint": "string",
		}),
		Responses: map[string]any{"200": ok("session issued"), "401": ok("token rejected"), "409": ok("email already linked")},
	})
	r.Register(openapi.Operation{
		Method: "POST", Path: "/auth/employee-login", Tags: []string{"employee"},
		Summary: "Exchange LINE tokens for a staff session",
		RequestBody: openapi.JSONBody([]string{"lineAccessToken", "lineIdToken"}, map[string]string{
			"lineAccessToken": "string", "lineIdToken": "string", "tenantHint": "string", "storeId": "string",
		}),
		Responses: map[string]any{"200": ok("staff session issued"), "400": ok("store selection required"), "403": ok("store not authorized"), "404": ok("employee or store not found")},
	})
	r.Register(openapi.Operation{
		Method: "GET", Path: "/auth/session", Tags: []string{"session"}, Session: true,
		Summary:   "Describe the presented session",
		Responses: map[string]any{"200": ok("session claims"), "401": ok("missing or invalid session")},
	})
	return r
}
