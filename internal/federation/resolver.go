package federation

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lineauth/internal/line"
	"lineauth/pkg/tenants"
)

var reservedLabels = map[string]bool{"api": true, "www": true}

// Resolver maps a login request onto a tenant and that tenant's LINE channel.
type Resolver struct {
	dir tenants.Provider
	log *zap.SugaredLogger
}

func NewResolver(dir tenants.Provider, log *zap.SugaredLogger) *Resolver {
	return &Resolver{dir: dir, log: log}
}

// Tenant returns the tenant id for a hint and request host. Strategies run in the order
// uuid hint, code, name, subdomain, system default; lookup errors are logged and skipped.
func (r *Resolver) Tenant(ctx context.Context, hint, host string) (string, error) {
	hint = strings.TrimSpace(hint)
	if hint != "" {
		if isUUID(hint) {
			return hint, nil
		}
		if t, ok := r.lookup(ctx, "code", hint, r.dir.TenantByCode); ok {
			return t.ID, nil
		}
		if t, ok := r.lookup(ctx, "name", hint, r.dir.TenantByName); ok {
			return t.ID, nil
		}
	}
	if sub := subdomain(host); sub != "" {
		if t, ok := r.lookup(ctx, "subdomain", sub, r.dir.TenantBySubdomain); ok {
			return t.ID, nil
		}
	}
	sys, err := r.dir.SystemDefaults(ctx)
	if err != nil {
		r.log.Warnw("system defaults lookup failed", "err", err)
	} else if sys.DefaultTenantID != "" {
		return sys.DefaultTenantID, nil
	}
	return "", newError(CodeTenantUnresolved, http.StatusBadRequest, nil, "no tenant could be determined for this request")
}

func (r *Resolver) lookup(ctx context.Context, by, key string, fn func(context.Context, string) (tenants.Tenant, error)) (tenants.Tenant, bool) {
	t, err := fn(ctx, key)
	switch {
	case err == nil:
		return t, true
	case errors.Is(err, tenants.ErrNotFound):
		r.log.Debugw("tenant lookup miss", "by", by, "key", key)
	default:
		r.log.Warnw("tenant lookup failed", "by", by, "key", key, "err", err)
	}
	return tenants.Tenant{}, false
}

// Channel merges the tenant's channel fields with the system defaults.
// tenantID may be empty, in which case only the defaults apply.
func (r *Resolver) Channel(ctx context.Context, tenantID string) (line.Channel, error) {
	var ch line.Channel
	if tenantID != "" {
		t, err := r.dir.TenantByID(ctx, tenantID)
		switch {
		case err == nil:
			ch = line.Channel{ID: t.LineChannelID, Secret: t.LineChannelSecret, RedirectURI: t.LineRedirectURI}
		case errors.Is(err, tenants.ErrNotFound):
			r.log.Debugw("tenant has no record, using system channel", "tenant", tenantID)
		default:
			return line.Channel{}, newError(CodeInternal, http.StatusInternalServerError, err, "tenant lookup failed")
		}
	}
	if ch.ID == "" || ch.Secret == "" || ch.RedirectURI == "" {
		sys, err := r.dir.SystemDefaults(ctx)
		if err != nil {
			return line.Channel{}, newError(CodeInternal, http.StatusInternalServerError, err, "system defaults lookup failed")
		}
		ch.ID = fallback(ch.ID, sys.LineChannelID)
		ch.Secret = fallback(ch.Secret, sys.LineChannelSecret)
		ch.RedirectURI = fallback(ch.RedirectURI, sys.LineRedirectURI)
	}
	var missing []string
	if ch.ID == "" {
		missing = append(missing, "channel id")
	}
	if ch.Secret == "" {
		missing = append(missing, "channel secret")
	}
	if ch.RedirectURI == "" {
		missing = append(missing, "redirect uri")
	}
	if len(missing) > 0 {
		return line.Channel{}, newError(CodeConfigurationIncomplete, http.StatusInternalServerError, nil,
			"LINE login is not configured for tenant %q (missing %s)", tenantID, strings.Join(missing, ", "))
	}
	return ch, nil
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// subdomain returns the leftmost label of host, or "" for IPs, single-label hosts and reserved labels.
func subdomain(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || net.ParseIP(strings.Trim(host, "[]")) != nil {
		return ""
	}
	label, _, found := strings.Cut(host, ".")
	if !found || label == "" || reservedLabels[label] {
		return ""
	}
	return label
}

func fallback(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
