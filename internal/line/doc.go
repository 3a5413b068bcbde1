// Package line is the LINE Login integration: authorization URL construction, authorization-code
// exchange, HS256 identity-token verification against the channel secret, and access-token
// introspection through the verify endpoint.
//
// All outbound calls carry an explicit timeout and share one circuit breaker so a provider outage
// fails fast instead of stacking slow login requests.
package line
